package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	blob "shelterhub/internal/blob/core"
	"shelterhub/internal/core"
	"shelterhub/pkg/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      domain.User `json:"user"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires, User: user})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	user, err := s.svc.GetUser(r.Context(), p.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// mutationResponse carries the affected record and any non-blocking rule
// violations raised by the transaction.
type mutationResponse struct {
	Data     any                `json:"data"`
	Warnings []domain.Violation `json:"warnings,omitempty"`
}

func writeMutation(w http.ResponseWriter, status int, data any, res core.Result) {
	writeJSON(w, status, mutationResponse{Data: data, Warnings: res.Violations})
}

func (s *Server) listCats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.CatFilter{
		Status: domain.CatStatus(q.Get("status")),
		WardID: q.Get("ward_id"),
		CageID: q.Get("cage_id"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		s.writeError(w, r, badInput("unknown status "+strconv.Quote(q.Get("status"))))
		return
	}
	if raw := q.Get("include_departed"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, badInput("include_departed must be a boolean"))
			return
		}
		filter.IncludeDeparted = include
	}
	cats, err := s.svc.ListCats(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cats": cats})
}

func (s *Server) getCat(w http.ResponseWriter, r *http.Request) {
	cat, err := s.svc.GetCat(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cat": cat})
}

type intakeRequest struct {
	Name      string     `json:"name"`
	Sex       string     `json:"sex"`
	Breed     string     `json:"breed"`
	Color     string     `json:"color"`
	BirthDate *time.Time `json:"birth_date"`
	IntakeAt  time.Time  `json:"intake_at"`
	Notes     string     `json:"notes"`
	CageID    *string    `json:"cage_id"`
}

func (s *Server) intakeCat(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	cat, res, err := s.svc.IntakeCat(r.Context(), domain.Cat{
		Name:      req.Name,
		Sex:       req.Sex,
		Breed:     req.Breed,
		Color:     req.Color,
		BirthDate: req.BirthDate,
		IntakeAt:  req.IntakeAt,
		Notes:     req.Notes,
		CageID:    req.CageID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusCreated, cat, res)
}

func (s *Server) placeCat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CageID string `json:"cage_id"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.CageID) == "" {
		s.writeError(w, r, badInput("cage_id is required"))
		return
	}
	cat, res, err := s.svc.PlaceCat(r.Context(), mux.Vars(r)["id"], req.CageID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusOK, cat, res)
}

func (s *Server) releaseCat(w http.ResponseWriter, r *http.Request) {
	cat, res, err := s.svc.ReleaseCat(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusOK, cat, res)
}

func (s *Server) dischargeCat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome domain.CatStatus `json:"outcome"`
		At      time.Time        `json:"at"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	cat, res, err := s.svc.DischargeCat(r.Context(), mux.Vars(r)["id"], req.Outcome, req.At)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusOK, cat, res)
}

func (s *Server) holdCat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hold bool `json:"hold"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	cat, res, err := s.svc.SetMedicalHold(r.Context(), mux.Vars(r)["id"], req.Hold)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusOK, cat, res)
}

func (s *Server) putCatPhoto(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		s.writeError(w, r, badInput("photo must be sent with an image/* content type"))
		return
	}
	body := http.MaxBytesReader(w, r.Body, s.maxPhotoBytes)
	cat, res, err := s.svc.AttachCatPhoto(r.Context(), mux.Vars(r)["id"], mediaType, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = badInput("photo exceeds " + strconv.FormatInt(s.maxPhotoBytes, 10) + " bytes")
		}
		s.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusOK, cat, res)
}

// getCatPhoto redirects to a presigned URL when the blob driver supports it
// and streams the object otherwise.
func (s *Server) getCatPhoto(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	url, err := s.svc.CatPhotoURL(r.Context(), id, s.photoURLExpiry)
	switch {
	case err == nil:
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	case !errors.Is(err, blob.ErrUnsupported):
		s.writeError(w, r, err)
		return
	}
	info, rc, err := s.svc.CatPhoto(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer rc.Close()
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if info.ETag != "" {
		w.Header().Set("ETag", strconv.Quote(info.ETag))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("photo stream interrupted", zap.String("cat_id", id), zap.Error(err))
	}
}
