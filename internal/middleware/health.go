package middleware

import (
	"encoding/json"
	"net/http"
)

// HealthStatus is the liveness payload. The analyzer binary is not probed;
// a missing binary shows up in each audit's slitherRaw instead.
type HealthStatus struct {
	Status           string `json:"status"`
	SlitherAvailable bool   `json:"slither_available"`
}

// HealthHandler always answers 200.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthStatus{Status: "healthy", SlitherAvailable: true})
}
