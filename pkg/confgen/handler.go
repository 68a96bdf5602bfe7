package confgen

import (
	"encoding/json"
	"net/http"

	"code.cloudfoundry.org/lager"
	"github.com/go-chi/chi/v5"
	uuid "github.com/satori/go.uuid"
)

const (
	errFailedToDecodeRequest  = "failed-to-decode-request"
	errFailedToEncodeResponse = "failed-to-encode-response"
)

// NewHandler mounts the config-generation endpoint. Each request gets its own
// logger session tagged with a request id.
func NewHandler(logger lager.Logger, service *Service) http.Handler {
	r := chi.NewRouter()

	r.Post("/v1/node-config", func(w http.ResponseWriter, req *http.Request) {
		requestLogger := logger.Session("node-config", lager.Data{
			"request_id": uuid.NewV4().String(),
		})

		var generateReq GenerateRequest
		if err := json.NewDecoder(req.Body).Decode(&generateReq); err != nil {
			requestLogger.Error(errFailedToDecodeRequest, err)
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}

		config, err := service.Generate(req.Context(), requestLogger, generateReq)
		switch err {
		case nil:
		case ErrInvalidNodeSettings:
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case ErrStaleGeneration:
			writeError(w, http.StatusConflict, err.Error())
			return
		default:
			writeError(w, http.StatusInternalServerError, "failed to generate node config")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(config); err != nil {
			requestLogger.Error(errFailedToEncodeResponse, err)
		}
	})

	return r
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
