package handler

import (
	"net/http"
)

// HealthMessage is the body of the unauthenticated health check.
const HealthMessage = "PennyLane Support API is up!"

// HandleHealth answers GET / so load balancers and humans can see the API
// is running.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, HealthMessage)
}

// SecureDataResponse is returned by the protected smoke-test route.
type SecureDataResponse struct {
	Message string `json:"message"`
}

// HandleSecureData answers GET /api/secure-data. It runs behind
// auth.Guard.RequireAuth, so reaching it at all proves the credential was
// valid.
func HandleSecureData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SecureDataResponse{Message: "This is a protected route."})
}
