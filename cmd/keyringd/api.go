package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"crosstalk/go-backend/internal/backup"
	"crosstalk/go-backend/internal/directory"
	"crosstalk/go-backend/pkg/models"
)

// newAPIHandler exposes the daemon's components on the local listener next to
// the metrics endpoint. The surface is loopback-only; the transport daemon is
// its only intended caller.
func newAPIHandler(svc *service, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics)

	mux.HandleFunc("GET /v1/keys/{address}", func(w http.ResponseWriter, r *http.Request) {
		res, ok := svc.dir.ResolvePublicKey(r.Context(), r.PathValue("address"))
		if !ok {
			http.Error(w, "no key available", http.StatusNotFound)
			return
		}
		writeJSON(w, res)
	})

	mux.HandleFunc("POST /v1/identities/{address}/rotate", func(w http.ResponseWriter, r *http.Request) {
		pair, err := svc.rotation.RotateKeys(r.Context(), r.PathValue("address"))
		if err != nil && !errors.Is(err, directory.ErrUnavailable) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, struct {
			PublicKey []byte `json:"public_key"`
			Published bool   `json:"published"`
		}{pair.PublicKey, err == nil})
	})

	mux.HandleFunc("POST /v1/identities/{address}/backup", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request", http.StatusBadRequest)
			return
		}
		blob, err := svc.backup.Export(r.PathValue("address"), req.Password)
		switch {
		case errors.Is(err, backup.ErrNoKeys):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, backup.ErrPasswordMissing):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			writeJSON(w, blob)
		}
	})

	mux.HandleFunc("POST /v1/identities/restore", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Password string            `json:"password"`
			Blob     models.BackupBlob `json:"blob"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request", http.StatusBadRequest)
			return
		}
		err := svc.backup.Import(req.Blob, req.Password)
		switch {
		case errors.Is(err, backup.ErrAuthFailed):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, backup.ErrPasswordLocked):
			http.Error(w, err.Error(), http.StatusTooManyRequests)
		case err != nil:
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	mux.HandleFunc("POST /v1/envelopes", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Plaintext []byte `json:"plaintext"`
			Recipient string `json:"recipient"`
			Sender    string `json:"sender"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request", http.StatusBadRequest)
			return
		}
		writeJSON(w, svc.codec.EncryptForRecipient(r.Context(), req.Plaintext, req.Recipient, req.Sender))
	})

	mux.HandleFunc("POST /v1/envelopes/open", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Envelope models.Envelope `json:"envelope"`
			Address  string          `json:"address"`
			Sender   string          `json:"sender"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request", http.StatusBadRequest)
			return
		}
		writeJSON(w, struct {
			Plaintext []byte `json:"plaintext"`
		}{svc.codec.DecryptOrPlaceholder(req.Envelope, req.Address, req.Sender)})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
