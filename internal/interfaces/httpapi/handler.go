package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pickuphub/pickup-backend/internal/platform/logging"
	"github.com/pickuphub/pickup-backend/internal/usecase"
)

type Handler struct {
	queueService   *usecase.QueueService
	stageService   *usecase.StageService
	outcomeService *usecase.OutcomeService
	subService     *usecase.SubService
	statusService  *usecase.StatusService
	guardService   *usecase.GuardService
	statusCooldown time.Duration
	logger         *logging.Logger
	validator      *validator.Validate
}

func NewHandler(
	queueService *usecase.QueueService,
	stageService *usecase.StageService,
	outcomeService *usecase.OutcomeService,
	subService *usecase.SubService,
	statusService *usecase.StatusService,
	guardService *usecase.GuardService,
	statusCooldown time.Duration,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		queueService:   queueService,
		stageService:   stageService,
		outcomeService: outcomeService,
		subService:     subService,
		statusService:  statusService,
		guardService:   guardService,
		statusCooldown: statusCooldown,
		logger:         logger,
		validator:      validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrValidation, err)
	}

	return nil
}
