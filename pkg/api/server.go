package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/angstrom-labs/angstrom-core/amm"
	"github.com/angstrom-labs/angstrom-core/configstore"
	"github.com/angstrom-labs/angstrom-core/growth"
	"github.com/angstrom-labs/angstrom-core/nonce"
	"github.com/angstrom-labs/angstrom-core/position"
)

// Server serves the read-only introspection API over whatever settlement
// core state the caller wires in; it never mutates any of it.
type Server struct {
	Config    *configstore.Store
	Growths   map[amm.PoolID]*growth.Pool
	Positions *position.Ledger
	Nonces    *nonce.Store
	Log       *zap.Logger

	router *mux.Router
}

// NewServer builds a Server and registers its routes.
func NewServer(cfg *configstore.Store, growths map[amm.PoolID]*growth.Pool, positions *position.Ledger, nonces *nonce.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{Config: cfg, Growths: growths, Positions: positions, Nonces: nonces, Log: log, router: mux.NewRouter()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/config/{pairKey}", s.handleConfig).Methods("GET")
	v1.HandleFunc("/pools/{poolID}/rewards", s.handleRewards).Methods("GET")
	v1.HandleFunc("/positions/{poolID}/{owner}/{lower}/{upper}/{salt}", s.handlePosition).Methods("GET")
	v1.HandleFunc("/nonces/{signer}/{word}", s.handleNonceWord).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start blocks serving the API on addr, behind permissive read-only CORS.
func (s *Server) Start(addr string) error {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	})
	s.Log.Info("introspection api starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["pairKey"]
	keyBytes, err := hex.DecodeString(trim0x(raw))
	if err != nil || len(keyBytes) != 27 {
		respondError(w, http.StatusBadRequest, "invalid pair key")
		return
	}
	var key configstore.PairKey
	copy(key[:], keyBytes)

	entry, ok := s.Config.ByKey(key)
	if !ok {
		respondError(w, http.StatusNotFound, "pair not configured")
		return
	}
	unlockedFee, unlockedSet := s.Config.UnlockedFee(key)

	respondJSON(w, ConfigResponse{
		PairKey:     raw,
		TickSpacing: entry.TickSpacing,
		BundleFee:   entry.BundleFee,
		UnlockedFee: unlockedFee,
		UnlockedSet: unlockedSet,
	})
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["poolID"]
	poolID, err := parsePoolID(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pool id")
		return
	}
	g, ok := s.Growths[poolID]
	if !ok {
		g = growth.New()
	}

	resp := RewardsResponse{PoolID: raw, GlobalGrowth: g.GlobalGrowth.Dec()}
	if tickStr := r.URL.Query().Get("tick"); tickStr != "" {
		t, err := strconv.ParseInt(tickStr, 10, 32)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid tick")
			return
		}
		tick := int32(t)
		outside, ok := g.GrowthOutside[tick]
		if !ok {
			outside = uint256.NewInt(0)
		}
		resp.Tick = &tick
		resp.GrowthOutside = outside.Dec()
	}
	respondJSON(w, resp)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	poolID, err := parsePoolID(vars["poolID"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pool id")
		return
	}
	if !common.IsHexAddress(vars["owner"]) {
		respondError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	owner := common.HexToAddress(vars["owner"])
	lower, err1 := strconv.ParseInt(vars["lower"], 10, 32)
	upper, err2 := strconv.ParseInt(vars["upper"], 10, 32)
	if err1 != nil || err2 != nil {
		respondError(w, http.StatusBadRequest, "invalid tick range")
		return
	}
	saltBytes, err := hex.DecodeString(trim0x(vars["salt"]))
	if err != nil || len(saltBytes) != 32 {
		respondError(w, http.StatusBadRequest, "invalid salt")
		return
	}
	var salt [32]byte
	copy(salt[:], saltBytes)

	key := position.Key{Pool: poolID, Owner: owner, Lower: int32(lower), Upper: int32(upper), Salt: salt}
	lastGrowthInside, err := s.Positions.Lookup(key)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, PositionResponse{
		PoolID:           vars["poolID"],
		Owner:            owner.Hex(),
		Lower:            int32(lower),
		Upper:            int32(upper),
		Salt:             vars["salt"],
		LastGrowthInside: lastGrowthInside.Dec(),
	})
}

func (s *Server) handleNonceWord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !common.IsHexAddress(vars["signer"]) {
		respondError(w, http.StatusBadRequest, "invalid signer address")
		return
	}
	signer := common.HexToAddress(vars["signer"])
	word, err := strconv.ParseUint(vars["word"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid word index")
		return
	}

	bits, err := s.Nonces.Word(signer, word)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	raw, err := bits.MarshalBinary()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, NonceWordResponse{
		Signer: signer.Hex(),
		Word:   word,
		Bits:   "0x" + hex.EncodeToString(raw),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func parsePoolID(raw string) (amm.PoolID, error) {
	var id amm.PoolID
	b, err := hex.DecodeString(trim0x(raw))
	if err != nil || len(b) != len(id) {
		return id, &hexLengthError{}
	}
	copy(id[:], b)
	return id, nil
}

type hexLengthError struct{}

func (*hexLengthError) Error() string { return "wrong byte length for hex-encoded field" }

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
