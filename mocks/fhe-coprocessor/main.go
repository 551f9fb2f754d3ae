// Mock FHE coprocessor for local development. Accepts ciphertext/proof pairs
// and reports them valid unless the proof is empty or DENY_ALL is set.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
)

type verifyRequest struct {
	Ciphertext []byte `json:"ciphertext"`
	Proof      []byte `json:"proof"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

func main() {
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":9090"
	}
	denyAll := os.Getenv("DENY_ALL") == "true"

	mux := http.NewServeMux()
	mux.HandleFunc("POST /verify", func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request", http.StatusBadRequest)
			return
		}
		valid := !denyAll && len(req.Ciphertext) > 0 && len(req.Proof) > 0
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(verifyResponse{Valid: valid})
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	log.Printf("mock fhe coprocessor listening on %s (deny_all=%v)", addr, denyAll)
	log.Fatal(http.ListenAndServe(addr, mux))
}
