package httpapi

import (
	"net/http"

	"github.com/pickuphub/pickup-backend/internal/usecase"
)

func registerSystemRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
}

func registerCommunityRoutes(mux *http.ServeMux, handler *Handler, guards *usecase.GuardService) {
	guarded := func(h http.HandlerFunc) http.Handler {
		return RequireActor(FloodGuard(guards, h))
	}

	mux.Handle("GET /v1/communities/{communityID}/status", guarded(handler.GetStatus))
	mux.Handle("POST /v1/communities/{communityID}/queue", guarded(handler.JoinQueue))
	mux.Handle("DELETE /v1/communities/{communityID}/queue/{configID}", guarded(handler.LeaveQueue))
	mux.Handle("POST /v1/communities/{communityID}/picks", guarded(handler.SubmitPicks))
	mux.Handle("POST /v1/communities/{communityID}/reports", guarded(handler.ReportOutcome))
	mux.Handle("POST /v1/communities/{communityID}/subs", guarded(handler.RequestSub))
	mux.Handle("POST /v1/communities/{communityID}/subs/accept", guarded(handler.AcceptSub))
}
