package daikin_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	testAPIKey = "api-key"
	testEmail  = "user@example.com"
	testSecret = "integrator-token-0123456789"
)

// apiServer implements an authenticating Daikin API server
type apiServer struct {
	*httptest.Server
	lock         sync.Mutex
	tokenCalls   int
	accessToken  string
	expiresIn    int
	tokenReply   string
	tokenStatus  int
	locations    string
	devices      map[string]string
	updateStatus int
	updates      []string
}

func newAPIServer(t *testing.T) *apiServer {
	t.Helper()
	s := apiServer{
		expiresIn:    3600,
		locations:    locations,
		devices:      deviceStates,
		updateStatus: http.StatusOK,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)
	return &s
}

func (s *apiServer) serve(w http.ResponseWriter, req *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if req.Header.Get("x-api-key") != testAPIKey || req.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "missing headers", http.StatusBadRequest)
		return
	}

	if req.URL.Path == "/v1/token" {
		s.respondAuth(w, req)
		return
	}

	if s.accessToken == "" || req.Header.Get("Authorization") != "Bearer "+s.accessToken {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if req.Method == http.MethodPut {
		body, _ := io.ReadAll(req.Body)
		s.updates = append(s.updates, req.URL.Path+" "+string(body))
		w.WriteHeader(s.updateStatus)
		return
	}

	if req.URL.Path == "/v1/devices" {
		_, _ = w.Write([]byte(s.locations))
		return
	}

	if response, ok := s.devices[strings.TrimPrefix(req.URL.Path, "/v1/devices/")]; ok {
		_, _ = w.Write([]byte(response))
		return
	}
	http.Error(w, "API "+req.URL.Path+" not implemented", http.StatusNotFound)
}

func (s *apiServer) respondAuth(w http.ResponseWriter, req *http.Request) {
	var request struct {
		Email           string `json:"email"`
		IntegratorToken string `json:"integratorToken"`
	}
	if err := json.NewDecoder(req.Body).Decode(&request); err != nil || request.Email != testEmail || request.IntegratorToken != testSecret {
		http.Error(w, `{"message":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	s.tokenCalls++
	if s.tokenStatus != 0 {
		w.WriteHeader(s.tokenStatus)
	}
	if s.tokenReply != "" {
		_, _ = w.Write([]byte(s.tokenReply))
		return
	}
	s.accessToken = fmt.Sprintf("token_%d", s.tokenCalls)
	_, _ = fmt.Fprintf(w, `{"accessToken":"%s","accessTokenExpiresIn":%d,"tokenType":"Bearer"}`, s.accessToken, s.expiresIn)
}

func (s *apiServer) getTokenCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.tokenCalls
}

func (s *apiServer) getUpdates() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.updates...)
}

const locations = `[
  {
    "locationName": "Home",
    "devices": [
      { "id": "0001", "type": "Thermostat", "name": "Living room", "model": "ONEPLUS", "firmwareVersion": "3.2.19" },
      { "id": "0002", "type": "Thermostat", "name": "Upstairs", "model": "ONEPLUS", "firmwareVersion": "3.2.19" }
    ]
  },
  {
    "locationName": "Cabin",
    "devices": [
      { "id": "0003", "type": "Thermostat", "name": "Cabin", "model": "ONE", "firmwareVersion": "2.1.1" }
    ]
  }
]`

var deviceStates = map[string]string{
	"0001": `{"equipmentStatus":5,"mode":"heat","heatSetpoint":20.5,"coolSetpoint":25,"tempIndoor":19.8,"humIndoor":41,"fanCirculate":0,"fanCirculateSpeed":1,"scheduleEnabled":true}`,
	"0002": `{"equipmentStatus":3,"mode":"auto","heatSetpoint":19,"coolSetpoint":24,"tempIndoor":18.5,"humIndoor":45,"fanCirculate":1,"fanCirculateSpeed":0,"scheduleEnabled":false}`,
	"0003": `{"equipmentStatus":5,"mode":"off","heatSetpoint":10,"coolSetpoint":30,"tempIndoor":12,"humIndoor":60}`,
}
