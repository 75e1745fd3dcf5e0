package downloads

import (
	"context"
	"errors"
	"net/http"

	"github.com/ankyy/musicbox/internal/admission"
	"github.com/ankyy/musicbox/internal/api/util"
	"github.com/ankyy/musicbox/internal/downloader"
	"github.com/ankyy/musicbox/internal/identity"
	"github.com/ankyy/musicbox/internal/ytdlp"
	"github.com/ankyy/musicbox/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var controllerLogger = logger.Get("DownloadsController")

type (
	// Service is the scheduler surface this controller consumes. Submission
	// never blocks; the controller waits on the returned job when the route
	// has synchronous response semantics.
	Service interface {
		Submit(request downloader.Request) *downloader.Job
	}

	// Prober resolves a playlist URL in to its entries without fetching any
	// of them.
	Prober interface {
		ProbePlaylist(ctx context.Context, url string) (*ytdlp.Playlist, error)
	}

	// Admitter gates job creation. A denial is terminal for the request; no
	// job is created and nothing further is charged.
	Admitter interface {
		Admit(ctx context.Context, id identity.Identity, clientKey string) (admission.Decision, error)
	}

	// DownloadsController defines the extraction routes. It translates the
	// loose inbound request shape in to the schedulers canonical Request and
	// maps pipeline failures on to safe HTTP responses.
	//
	// Requests are processed strictly as validate, then admit, then submit:
	// a malformed submission is rejected before the admission check runs, so
	// it can never consume any of an anonymous callers daily allowance.
	DownloadsController struct {
		service  Service
		prober   Prober
		admitter Admitter
		validate *validator.Validate
	}

	submissionRequest struct {
		URL     string `json:"url" validate:"required,url"`
		Kind    string `json:"type"`
		Quality string `json:"quality"`
		Effect  string `json:"effect"`
	}

	playlistResponse struct {
		Title  string `json:"title"`
		Queued int    `json:"queued"`
	}

	quotaDeniedResponse struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
)

func New(service Service, prober Prober, admitter Admitter) *DownloadsController {
	return &DownloadsController{service: service, prober: prober, admitter: admitter, validate: validator.New()}
}

func (controller *DownloadsController) SetRoutes(eg *echo.Group) {
	eg.POST("/extract/", controller.extract)
	eg.POST("/convert/", controller.convert)
	eg.POST("/playlist/", controller.playlist)
}

// extract probes the URL for its metadata without fetching any media. The
// response is the normalized metadata for the target.
func (controller *DownloadsController) extract(ec echo.Context) error {
	return controller.submitAndWait(ec, true)
}

// convert performs the full fetch/convert of the target and responds with
// the canonical result once the job concludes.
func (controller *DownloadsController) convert(ec echo.Context) error {
	return controller.submitAndWait(ec, false)
}

// playlist resolves a playlist URL and queues one conversion job per entry.
// The response is returned as soon as the entries are queued; progress is
// observable over the activity socket.
func (controller *DownloadsController) playlist(ec echo.Context) error {
	body, err := controller.bindSubmission(ec)
	if err != nil {
		return err
	}

	if admitted, err := controller.admit(ec); !admitted {
		return err
	}

	playlist, err := controller.prober.ProbePlaylist(ec.Request().Context(), body.URL)
	if err != nil {
		return mapExtractionError(err)
	}

	id := util.IdentityFromContext(ec)
	for _, entry := range playlist.Entries {
		controller.service.Submit(downloader.Request{
			URL:       entry.URL,
			Kind:      ytdlp.ParseKind(body.Kind),
			Quality:   ytdlp.ParseQuality(body.Quality),
			Effect:    ytdlp.ParseEffect(body.Effect),
			Identity:  id,
			ClientKey: ec.RealIP(),
		})
	}

	controllerLogger.Infof("Queued %d entries from playlist %q\n", len(playlist.Entries), playlist.Title)
	return ec.JSON(http.StatusAccepted, playlistResponse{Title: playlist.Title, Queued: len(playlist.Entries)})
}

func (controller *DownloadsController) submitAndWait(ec echo.Context, metadataOnly bool) error {
	body, err := controller.bindSubmission(ec)
	if err != nil {
		return err
	}

	if admitted, err := controller.admit(ec); !admitted {
		return err
	}

	job := controller.service.Submit(downloader.Request{
		URL:          body.URL,
		Kind:         ytdlp.ParseKind(body.Kind),
		Quality:      ytdlp.ParseQuality(body.Quality),
		Effect:       ytdlp.ParseEffect(body.Effect),
		MetadataOnly: metadataOnly,
		Identity:     util.IdentityFromContext(ec),
		ClientKey:    ec.RealIP(),
	})

	if err := job.Wait(ec.Request().Context()); err != nil {
		// The caller went away; the job itself carries on regardless.
		return err
	}

	result, err := job.Outcome()
	if err != nil {
		return mapExtractionError(err)
	}

	return ec.JSON(http.StatusOK, result)
}

func (controller *DownloadsController) bindSubmission(ec echo.Context) (*submissionRequest, error) {
	var body submissionRequest
	if err := ec.Bind(&body); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Malformed request body")
	}

	if err := controller.validate.Struct(&body); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "A valid 'url' field is required")
	}

	return &body, nil
}

// admit runs the quota check for an already-validated submission. The first
// return reports whether the request may proceed; when false, the second is
// the response (or error) that concludes it.
func (controller *DownloadsController) admit(ec echo.Context) (bool, error) {
	id := util.IdentityFromContext(ec)
	decision, err := controller.admitter.Admit(ec.Request().Context(), id, ec.RealIP())
	if err != nil {
		if errors.Is(err, admission.ErrLimitReached) {
			return false, ec.JSON(http.StatusTooManyRequests, quotaDeniedResponse{
				Error:   admission.ErrLimitReached.Error(),
				Message: admission.LimitRemediation,
			})
		}

		controllerLogger.Errorf("Admission check failed for %s: %v\n", ec.RealIP(), err)
		return false, echo.NewHTTPError(http.StatusServiceUnavailable, "Service temporarily unavailable")
	}

	util.SetAdmission(ec, decision)
	return true, nil
}

// mapExtractionError converts pipeline failures in to safe HTTP errors. The
// upstream tools stderr is logged by the pipeline but never surfaced to the
// caller.
func mapExtractionError(err error) error {
	var upstream *ytdlp.UpstreamError
	if errors.As(err, &upstream) {
		controllerLogger.Errorf("Extraction failed upstream: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Extraction failed; the media could not be processed")
	}

	controllerLogger.Errorf("Extraction failed: %v\n", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "Extraction failed")
}
