package auth

import (
	"encoding/json"
	"net/http"
)

// TokenRequest is the token mint request body.
type TokenRequest struct {
	ClientID string `json:"client_id"`
	APIKey   string `json:"api_key"`
}

// TokenResponse carries a freshly minted bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// TokenHandler exchanges the configured API key for a short-lived JWT.
// POST /api/token
func TokenHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !Enabled() {
		http.Error(w, `{"error":"authentication not configured"}`, http.StatusServiceUnavailable)
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	if apiKey == "" || req.APIKey != apiKey {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
		return
	}
	if req.ClientID == "" {
		req.ClientID = "default"
	}

	token, err := GenerateToken(req.ClientID)
	if err != nil {
		http.Error(w, `{"error":"failed to generate token"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(TokenResponse{Token: token})
}
