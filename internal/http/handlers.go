package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tazhibayda/learnpath-auth/internal/apperrors"
	"github.com/tazhibayda/learnpath-auth/internal/auth"
	"github.com/tazhibayda/learnpath-auth/internal/domain"
	"github.com/tazhibayda/learnpath-auth/internal/log"
	"github.com/tazhibayda/learnpath-auth/internal/oauth"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Auth            *auth.Service
	Google          *oauth.GoogleOAuth // nil when Google login is not configured
	OAuthSuccessURL string
	OAuthFailureURL string
	Checks          map[string]Pinger
}

func NewHandler(svc *auth.Service, google *oauth.GoogleOAuth, successURL, failureURL string) *Handler {
	return &Handler{
		Auth:            svc,
		Google:          google,
		OAuthSuccessURL: successURL,
		OAuthFailureURL: failureURL,
		Checks:          map[string]Pinger{},
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindValidation, "invalid json", err))
		return false
	}
	return true
}

type registerResp struct {
	Message     string `json:"message"`
	Email       string `json:"email"`
	VerifyToken string `json:"verifytoken"`
}

// Register godoc
// @Summary Register user
// @Description Creates an unverified account and emails a 6-digit confirmation code.
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body auth.RegisterInput true "register"
// @Success 201 {object} registerResp
// @Failure 400 {object} errorResponse
// @Failure 500 {object} errorResponse
// @Router /api/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var in auth.RegisterInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.Auth.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, registerResp{
		Message:     "registered, check your email for the confirmation code",
		Email:       res.Email,
		VerifyToken: res.VerifyToken,
	})
}

type loginResp struct {
	ID    string       `json:"id"`
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

// Login godoc
// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body auth.LoginInput true "login"
// @Success 200 {object} loginResp
// @Failure 400 {object} errorResponse
// @Router /api/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var in auth.LoginInput
	if !bindJSON(c, &in) {
		return
	}
	sess, err := h.Auth.Login(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResp{ID: sess.User.ID.Hex(), User: sess.User, Token: sess.Token})
}

// codeValue accepts the confirmation code as a JSON string or number.
type codeValue string

func (v *codeValue) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = codeValue(s)
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return err
	}
	*v = codeValue(n.String())
	return nil
}

type verifyReq struct {
	Email string    `json:"email"`
	Code  codeValue `json:"code" swaggertype:"string"`
}

type sessionResp struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    *domain.User `json:"user"`
}

// VerifyEmail godoc
// @Summary Confirm email with the mailed code
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body verifyReq true "email and code"
// @Success 200 {object} sessionResp
// @Failure 400 {object} errorResponse
// @Router /api/auth/verify [post]
func (h *Handler) VerifyEmail(c *gin.Context) {
	var in verifyReq
	if !bindJSON(c, &in) {
		return
	}
	sess, err := h.Auth.VerifyEmail(c.Request.Context(), auth.VerifyInput{Email: in.Email, Code: string(in.Code)})
	if err != nil {
		respondError(c, err, notFoundAsBadRequest)
		return
	}
	c.JSON(http.StatusOK, sessionResp{Message: "email verified", Token: sess.Token, User: sess.User})
}

// GetUser godoc
// @Summary Current user
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} domain.User
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Router /api/auth/getUser [get]
func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.Auth.GetUser(c.Request.Context(), currentUser(c).ID.Hex())
	if err != nil {
		respondError(c, err, notFoundAsBadRequest)
		return
	}
	c.JSON(http.StatusOK, u)
}

type emailReq struct {
	Email string `json:"email"`
}

type statusResp struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// SendPasswordLink godoc
// @Summary Email a password reset link
// @Tags password
// @Accept json
// @Produce json
// @Param payload body emailReq true "email"
// @Success 200 {object} statusResp
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 500 {object} errorResponse
// @Router /api/auth/sendpasswordlink [post]
func (h *Handler) SendPasswordLink(c *gin.Context) {
	var in emailReq
	if !bindJSON(c, &in) {
		return
	}
	if err := h.Auth.RequestPasswordReset(c.Request.Context(), in.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResp{Status: http.StatusOK, Message: "password reset link sent to your email"})
}

type resetLinkResp struct {
	Status int    `json:"status"`
	Email  string `json:"email"`
	ID     string `json:"id"`
}

// CheckResetLink godoc
// @Summary Validate a password reset link
// @Tags password
// @Produce json
// @Param id path string true "user id"
// @Param token path string true "reset token"
// @Success 200 {object} resetLinkResp
// @Failure 401 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /api/auth/forgotpassword/{id}/{token} [get]
func (h *Handler) CheckResetLink(c *gin.Context) {
	id, token := c.Param("id"), c.Param("token")
	u, err := h.Auth.CheckResetLink(c.Request.Context(), id, token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resetLinkResp{Status: http.StatusOK, Email: u.Email, ID: id})
}

type passwordReq struct {
	Password string `json:"password"`
}

// ResetPassword godoc
// @Summary Set a new password from a reset link
// @Tags password
// @Accept json
// @Produce json
// @Param id path string true "user id"
// @Param token path string true "reset token"
// @Param payload body passwordReq true "new password"
// @Success 200 {object} statusResp
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /api/auth/{id}/{token} [post]
func (h *Handler) ResetPassword(c *gin.Context) {
	var in passwordReq
	if !bindJSON(c, &in) {
		return
	}
	if err := h.Auth.ResetPassword(c.Request.Context(), c.Param("id"), c.Param("token"), in.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResp{Status: http.StatusOK, Message: "password updated"})
}

type profileReq struct {
	Name            *string `json:"name"`
	FullName        *string `json:"fullName"`
	Bio             *string `json:"bio"`
	ProfileImageURL *string `json:"profileImageUrl"`
}

type profileResp struct {
	Success bool         `json:"success"`
	User    *domain.User `json:"user"`
}

// UpdateProfile godoc
// @Summary Update the caller's profile
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body profileReq true "fields to change"
// @Success 200 {object} profileResp
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /api/auth/update-profile [put]
func (h *Handler) UpdateProfile(c *gin.Context) {
	var in profileReq
	if !bindJSON(c, &in) {
		return
	}
	name := in.Name
	if name == nil {
		name = in.FullName
	}
	u, err := h.Auth.UpdateProfile(c.Request.Context(), currentUser(c).ID.Hex(), domain.ProfileUpdate{
		FullName:        name,
		Bio:             in.Bio,
		ProfileImageURL: in.ProfileImageURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profileResp{Success: true, User: u})
}

// GoogleLogin godoc
// @Summary Start Google sign-in
// @Tags oauth
// @Success 302
// @Failure 503 {object} errorResponse
// @Router /api/auth/google [get]
func (h *Handler) GoogleLogin(c *gin.Context) {
	if h.Google == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{
			Message: "google login is not configured", Code: string(apperrors.KindDownstream),
		})
		return
	}
	c.Redirect(http.StatusFound, h.Google.AuthURL(h.Google.NewState()))
}

// GoogleCallback godoc
// @Summary Google sign-in callback
// @Description Redirects to the client with ?token= on success or ?error= on failure.
// @Tags oauth
// @Param code query string true "authorization code"
// @Param state query string true "signed state"
// @Success 302
// @Router /api/auth/google/callback [get]
func (h *Handler) GoogleCallback(c *gin.Context) {
	lg := log.FromContext(c.Request.Context())
	if h.Google == nil {
		h.redirect(c, h.OAuthFailureURL, "error", "oauth_disabled")
		return
	}
	if !h.Google.VerifyState(c.Query("state")) {
		h.redirect(c, h.OAuthFailureURL, "error", "invalid_state")
		return
	}
	code := c.Query("code")
	if code == "" {
		h.redirect(c, h.OAuthFailureURL, "error", "missing_code")
		return
	}

	profile, err := h.Google.ExchangeAndVerify(c.Request.Context(), code)
	if err != nil {
		lg.Warn("google exchange failed", zap.Error(err))
		h.redirect(c, h.OAuthFailureURL, "error", "google_auth_failed")
		return
	}
	sess, created, err := h.Auth.GoogleLogin(c.Request.Context(), profile)
	if err != nil {
		lg.Error("google login failed", zap.Error(err))
		h.redirect(c, h.OAuthFailureURL, "error", "login_failed")
		return
	}
	lg.Info("google login", zap.String("user_id", sess.User.ID.Hex()), zap.Bool("created", created))
	h.redirect(c, h.OAuthSuccessURL, "token", sess.Token)
}

func (h *Handler) redirect(c *gin.Context, base, key, value string) {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	c.Redirect(http.StatusFound, base+sep+url.Values{key: {value}}.Encode())
}

// Healthz godoc
// @Summary Liveness and dependency check
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	for name, p := range h.Checks {
		if err := p.Ping(c.Request.Context()); err != nil {
			log.FromContext(c.Request.Context()).Warn("health check failed", zap.String("dep", name), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failing": name})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
