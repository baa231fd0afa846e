// Command verifierserver is the standalone verifier process HTTPVerifier
// talks to: a chi-routed HTTP service that accepts encoded ledger-proof
// work and reports whether it accepts each one. It accepts anything
// syntactically well-formed, matching core.MockVerifier's behavior,
// since no real SNARK proving/verification backend is wired into this
// module.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/synnergy-chain/stagedledger/core"
	"github.com/synnergy-chain/stagedledger/pkg/utils"
)

type verifyRequestWire struct {
	Works [][]byte `json:"works"`
}

type verifyResponseWire struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	if lvl, err := logrus.ParseLevel(utils.EnvOrDefault("VERIFIER_LOG_LEVEL", "info")); err == nil {
		log.SetLevel(lvl)
	}

	addr := utils.EnvOrDefault("VERIFIER_LISTEN_ADDR", "127.0.0.1:8787")
	cacheSize := 65536

	verifier := core.NewMockVerifier(cacheSize)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Post("/verify", verifyHandler(verifier, log))

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.WithField("addr", addr).Info("verifierserver: listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("verifierserver: exited")
		os.Exit(1)
	}
}

func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("verifierserver: request")
		})
	}
}

func verifyHandler(verifier *core.MockVerifier, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequestWire
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, verifyResponseWire{Valid: false, Errors: []string{err.Error()}})
			return
		}

		hashes := make([]core.Hash, 0, len(req.Works))
		msgs := make([]core.SokMessage, 0, len(req.Works))
		for _, raw := range req.Works {
			stmtHash, sok, err := core.DecodeLedgerProofStatementHash(raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, verifyResponseWire{Valid: false, Errors: []string{err.Error()}})
				return
			}
			hashes = append(hashes, stmtHash)
			msgs = append(msgs, sok)
		}

		if err := verifier.VerifyDigests(r.Context(), hashes, msgs); err != nil {
			log.WithError(err).Warn("verifierserver: rejected work")
			writeJSON(w, http.StatusOK, verifyResponseWire{Valid: false, Errors: []string{err.Error()}})
			return
		}
		writeJSON(w, http.StatusOK, verifyResponseWire{Valid: true})
	}
}

func writeJSON(w http.ResponseWriter, status int, body verifyResponseWire) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
