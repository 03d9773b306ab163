/*
certificates.go - Deduction certificate uploads

PURPOSE:
  Attaches insurance premium certificates and similar documents to a
  year-end adjustment. The blob lands under FILE_STORAGE_PATH; the
  database keeps only metadata. Non-admins may only touch their own
  adjustment's certificates.
*/
package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
)

// maxCertificateBytes caps a single upload at 10 MiB.
const maxCertificateBytes = 10 << 20

// visibleAdjustment loads the adjustment and enforces ownership.
func (h *Handler) visibleAdjustment(r *http.Request, id int64) (*model.YearEndAdjustment, error) {
	actor := actorFrom(r)
	adj, err := h.Store.YearEnd().Adjustment(r.Context(), actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && adj.EmployeeID != actor.EmployeeID {
		return nil, errs.ErrPermissionDenied
	}
	return adj, nil
}

// AttachCertificate stores one uploaded document against an adjustment.
func (h *Handler) AttachCertificate(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	adj, err := h.visibleAdjustment(r, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCertificateBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeDomainError(w, errs.Validationf("file", "multipart file field required: %v", err))
		return
	}
	defer file.Close()

	dir := filepath.Join(h.Files, fmt.Sprintf("yea_%d", adj.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.writeDomainError(w, err)
		return
	}
	stored := filepath.Join(dir, uuid.NewString()+filepath.Ext(header.Filename))
	dst, err := os.Create(stored)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	size, err := io.Copy(dst, file)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	cert := &model.DeductionCertificate{
		CompanyID:    actor.CompanyID,
		AdjustmentID: adj.ID,
		FileName:     header.Filename,
		StoredPath:   stored,
		ContentType:  header.Header.Get("Content-Type"),
		SizeBytes:    size,
		UploadedBy:   actor.UserID,
	}
	if err := h.Store.CreateCertificate(r.Context(), cert); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cert)
}

// ListCertificates returns an adjustment's uploaded documents.
func (h *Handler) ListCertificates(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if _, err := h.visibleAdjustment(r, id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	certs, err := h.Store.CertificatesForAdjustment(r.Context(), actor.CompanyID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, certs)
}
