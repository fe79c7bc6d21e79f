package webserver

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/escrow-market/src/api/market"
	"github.com/stake-plus/escrow-market/src/api/storage"
	"github.com/stake-plus/escrow-market/src/logging"
)

// Files serves the content-addressed file store under /api/ipfs.
type Files struct {
	store   storage.Store
	svc     *market.Service
	maxSize int64
}

func NewFiles(store storage.Store, svc *market.Service, maxSize int64) Files {
	return Files{store: store, svc: svc, maxSize: maxSize}
}

func (f Files) Upload(c *gin.Context) {
	// allow for the multipart envelope around the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, f.maxSize+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondErr(c, storage.ErrTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"err": "multipart field \"file\" is required"})
		return
	}
	if fh.Size > f.maxSize {
		respondErr(c, storage.ErrTooLarge)
		return
	}
	src, err := fh.Open()
	if err != nil {
		respondErr(c, err)
		return
	}
	defer src.Close()

	ctx := c.Request.Context()
	obj, err := f.store.Put(ctx, fh.Filename, fh.Header.Get("Content-Type"), src)
	if err != nil {
		respondErr(c, err)
		return
	}
	if _, err := f.svc.RecordFile(ctx, userID(c), f.store.Backend(), obj); err != nil {
		logging.Warn(ctx, "indexing upload", "cid", obj.CID, "error", err)
	}
	c.JSON(http.StatusCreated, gin.H{
		"cid":  obj.CID,
		"hash": obj.CID,
		"url":  "/api/ipfs/" + obj.CID,
		"file": obj,
	})
}

func (f Files) Get(c *gin.Context) {
	cid := c.Param("cid")
	if !storage.ValidCID(cid) {
		respondErr(c, storage.ErrInvalidCID)
		return
	}
	rc, obj, err := f.store.Open(c.Request.Context(), cid)
	if err != nil {
		respondErr(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", obj.ContentType)
	c.Header("Content-Length", strconv.FormatInt(obj.Size, 10))
	c.Header("Content-Disposition", "inline; filename="+strconv.Quote(obj.Name))
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Header("ETag", `"`+cid+`"`)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		logging.Warn(c.Request.Context(), "streaming file", "cid", cid, "error", err)
	}
}

func (f Files) Metadata(c *gin.Context) {
	cid := c.Param("cid")
	if !storage.ValidCID(cid) {
		respondErr(c, storage.ErrInvalidCID)
		return
	}
	obj, err := f.store.Stat(c.Request.Context(), cid)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, obj)
}
