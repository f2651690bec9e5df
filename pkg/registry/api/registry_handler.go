package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-registry/pkg/registry"
	"github.com/tendant/simple-registry/pkg/registry/auth"
)

const defaultMaxPublishSize = 50 << 20

// RegistryHandler serves the npm registry HTTP surface
type RegistryHandler struct {
	service        registry.Service
	resolver       *auth.Resolver
	baseURL        string
	maxPublishSize int64
}

// HandlerOption configures a RegistryHandler
type HandlerOption func(*RegistryHandler)

// WithResolver enables credential resolution and the login routes.
func WithResolver(resolver *auth.Resolver) HandlerOption {
	return func(h *RegistryHandler) {
		h.resolver = resolver
	}
}

// WithBaseURL sets the public URL written into dist.tarball. Without it the
// URL is derived from the request.
func WithBaseURL(baseURL string) HandlerOption {
	return func(h *RegistryHandler) {
		h.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithMaxPublishSize bounds the publish document size in bytes.
func WithMaxPublishSize(n int64) HandlerOption {
	return func(h *RegistryHandler) {
		if n > 0 {
			h.maxPublishSize = n
		}
	}
}

func NewRegistryHandler(service registry.Service, opts ...HandlerOption) *RegistryHandler {
	h := &RegistryHandler{
		service:        service,
		maxPublishSize: defaultMaxPublishSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the registry router. Scoped names are accepted both as
// "/@scope/name" and "/@scope%2fname".
func (h *RegistryHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RecoveryMiddleware)
	if h.resolver != nil {
		r.Use(h.resolver.Middleware)
		r.Put("/-/user/{user}", h.Login)
	}
	r.Get("/-/whoami", h.Whoami)

	r.Get("/{pkg}", h.GetPackage)
	r.Get("/{pkg}/{sub}", h.GetPackage)
	r.With(RequestSizeLimitMiddleware(h.maxPublishSize)).Put("/{pkg}", h.Publish)
	r.With(RequestSizeLimitMiddleware(h.maxPublishSize)).Put("/{pkg}/{sub}", h.Publish)
	r.Get("/{pkg}/-/{file}", h.DownloadTarball)
	r.Get("/{pkg}/{sub}/-/{file}", h.DownloadTarball)
	r.Delete("/{pkg}/-rev/{rev}", h.Unpublish)
	r.Delete("/{pkg}/{sub}/-rev/{rev}", h.Unpublish)

	return r
}

// packageName rebuilds the package name from the route params.
func packageName(r *http.Request) (string, bool) {
	pkg, err := url.PathUnescape(chi.URLParam(r, "pkg"))
	if err != nil {
		return "", false
	}
	sub := chi.URLParam(r, "sub")
	if sub == "" {
		return pkg, true
	}
	// Only a scope may be followed by a second segment.
	if !strings.HasPrefix(pkg, "@") || strings.Contains(pkg, "/") {
		return "", false
	}
	sub, err = url.PathUnescape(sub)
	if err != nil {
		return "", false
	}
	return pkg + "/" + sub, true
}

// PackageResponse is the packument returned by GET /{name}
type PackageResponse struct {
	ID       string                      `json:"_id"`
	Name     string                      `json:"name"`
	DistTags map[string]string           `json:"dist-tags"`
	Versions map[string]*VersionResponse `json:"versions"`
	Time     map[string]time.Time        `json:"time"`
}

// VersionResponse is one entry of PackageResponse.Versions
type VersionResponse struct {
	ID      string       `json:"_id"`
	Name    string       `json:"name"`
	Version string       `json:"version"`
	NpmUser *userRef     `json:"_npmUser,omitempty"`
	Dist    DistResponse `json:"dist"`
}

type userRef struct {
	Name string `json:"name"`
}

// DistResponse describes a version's tarball
type DistResponse struct {
	Tarball string `json:"tarball"`
	Shasum  string `json:"shasum"`
	Size    int64  `json:"size,omitempty"`
}

func versionResponse(v *registry.Version) *VersionResponse {
	resp := &VersionResponse{
		ID:      v.Name + "@" + v.Version,
		Name:    v.Name,
		Version: v.Version,
		Dist: DistResponse{
			Tarball: v.Dist.Tarball,
			Shasum:  v.Dist.Shasum,
			Size:    v.Dist.Size,
		},
	}
	if v.Publisher != "" {
		resp.NpmUser = &userRef{Name: v.Publisher}
	}
	return resp
}

// GetPackage returns the packument of a package
func (h *RegistryHandler) GetPackage(w http.ResponseWriter, r *http.Request) {
	name, ok := packageName(r)
	if !ok {
		respondError(w, r, http.StatusNotFound, ReasonNotFound)
		return
	}

	pkg, err := h.service.GetPackage(r.Context(), name)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	resp := PackageResponse{
		ID:       pkg.Name,
		Name:     pkg.Name,
		DistTags: pkg.DistTags,
		Versions: make(map[string]*VersionResponse, len(pkg.Versions)),
		Time:     pkg.Time,
	}
	for v, version := range pkg.Versions {
		resp.Versions[v] = versionResponse(version)
	}
	render.JSON(w, r, resp)
}

// PublishDocument is the body npm sends on publish
type PublishDocument struct {
	Name        string                       `json:"name"`
	Versions    map[string]PublishedVersion  `json:"versions"`
	Attachments map[string]PublishAttachment `json:"_attachments"`
}

// PublishedVersion is the version manifest inside a PublishDocument
type PublishedVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PublishAttachment carries a base64 encoded tarball
type PublishAttachment struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
	Length      int64  `json:"length"`
}

// Publish stores the single version carried by an npm publish document
func (h *RegistryHandler) Publish(w http.ResponseWriter, r *http.Request) {
	name, ok := packageName(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, invalidParam("package name"))
		return
	}

	var doc PublishDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		slog.Error("Failed to decode publish document", "package", name, "error", err)
		respondError(w, r, http.StatusBadRequest, invalidParam("malformed publish document"))
		return
	}
	if doc.Name != "" && doc.Name != name {
		respondError(w, r, http.StatusBadRequest, invalidParam("name %q does not match url", doc.Name))
		return
	}
	if len(doc.Versions) != 1 {
		respondError(w, r, http.StatusBadRequest, invalidParam("exactly one version must be published"))
		return
	}
	var version string
	for v := range doc.Versions {
		version = v
	}

	tarball, err := doc.tarball(name, version)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, invalidParam("%s", err))
		return
	}

	_, err = h.service.Publish(r.Context(), registry.IdentityFromContext(r.Context()), registry.PublishRequest{
		Name:       name,
		Version:    version,
		Tarball:    tarball,
		TarballURL: h.tarballURL(r, name, version),
	})
	if errors.Is(err, registry.ErrVersionExists) {
		respondError(w, r, http.StatusConflict, "[forbidden] cannot modify pre-existing version: "+version)
		return
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, OKResponse{OK: true})
}

// tarball finds and decodes the attachment of version.
func (d *PublishDocument) tarball(name, version string) ([]byte, error) {
	att, ok := d.Attachments[registry.TarballFilename(name, version)]
	if !ok {
		if len(d.Attachments) != 1 {
			return nil, errors.New("missing tarball attachment")
		}
		for _, a := range d.Attachments {
			att = a
		}
	}

	data, err := base64.StdEncoding.DecodeString(att.Data)
	if err != nil {
		return nil, errors.New("attachment is not valid base64")
	}
	if att.Length > 0 && att.Length != int64(len(data)) {
		return nil, errors.New("attachment length mismatch")
	}
	return data, nil
}

func (h *RegistryHandler) tarballURL(r *http.Request, name, version string) string {
	base := h.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/" + registry.TarballKey(name, version)
}

// DownloadTarball streams a tarball
func (h *RegistryHandler) DownloadTarball(w http.ResponseWriter, r *http.Request) {
	name, ok := packageName(r)
	if !ok {
		respondError(w, r, http.StatusNotFound, ReasonNotFound)
		return
	}

	reader, err := h.service.DownloadTarball(r.Context(), name, chi.URLParam(r, "file"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, reader); err != nil {
		slog.Error("Failed to stream tarball", "package", name, "error", err)
	}
}

// Unpublish removes every version of a package. Only administrators may
// call it; tarball cleanup problems never change the response.
func (h *RegistryHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	identity := registry.IdentityFromContext(r.Context())
	name, ok := packageName(r)
	if !ok {
		// Authorization is still decided before anything about the name.
		if err := registry.AuthorizeUnpublish(identity, name); err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondError(w, r, http.StatusNotFound, ReasonNotFound)
		return
	}

	if _, err := h.service.Unpublish(r.Context(), identity, name); err != nil {
		respondServiceError(w, r, err)
		return
	}

	render.JSON(w, r, OKResponse{OK: true})
}

// LoginRequest is the body of the npm adduser/login call
type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginResponse hands the client its Bearer token
type LoginResponse struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id"`
	Token string `json:"token"`
}

// Login exchanges a user name and password for a token
func (h *RegistryHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, invalidParam("malformed login request"))
		return
	}
	if req.Name == "" {
		req.Name = strings.TrimPrefix(chi.URLParam(r, "user"), "org.couchdb.user:")
	}

	token, err := h.resolver.Login(req.Name, req.Password)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, LoginResponse{OK: true, ID: "org.couchdb.user:" + req.Name, Token: token})
}

// Whoami reports the authenticated user name
func (h *RegistryHandler) Whoami(w http.ResponseWriter, r *http.Request) {
	identity := registry.IdentityFromContext(r.Context())
	if identity == nil {
		respondError(w, r, http.StatusUnauthorized, ReasonUnauthorized)
		return
	}
	render.JSON(w, r, map[string]string{"username": identity.Name})
}
