package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/contacts-manager/internal/config"
)

// captureWriter tees the response body into buf, up to limit bytes.
type captureWriter struct {
	http.ResponseWriter
	status    int
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if !cw.truncated {
		if cw.limit > 0 && int64(cw.buf.Len()+len(b)) > cw.limit {
			cw.truncated = true
			cw.buf.Reset()
		} else {
			cw.buf.Write(b)
		}
	}
	return cw.ResponseWriter.Write(b)
}

// ResponseCache caches successful responses of cfg.Methods per caller.
// A generation counter in Redis is part of every key; a successful request
// with any other method bumps it, so cached responses never outlive a
// mutation.  The counter is shared by all cached groups because deleting a
// user also deletes contacts.
func ResponseCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	maxBody := int64(cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ns := namespace(c.Path())
			genKey := generationKey(cfg.Prefix)

			if !cfg.Methods[c.Request().Method] {
				return invalidate(next, c, rdb, genKey, log)
			}

			gen, err := rdb.Get(ctx, genKey).Int64()
			if err != nil && err != redis.Nil {
				log.Warn("cache generation lookup failed", zap.Error(err))
				return next(c)
			}
			key := cacheKey(cfg.Prefix, ns, gen, c)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(status, hdr.Get(echo.HeaderContentType), body)
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || cw.truncated {
				return nil
			}

			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			// the request context may already be cancelled once the response is out
			if err := rdb.Set(context.WithoutCancel(ctx), key, payload, cfg.TTL).Err(); err != nil {
				log.Warn("cache store failed", zap.Error(err))
			}
			return nil
		}
	}
}

// InvalidateCache bumps the shared generation after a successful request.
// It goes on routes outside the cached groups that still change what those
// groups list, such as registration adding a user.
func InvalidateCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	genKey := generationKey(cfg.Prefix)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return invalidate(next, c, rdb, genKey, log)
		}
	}
}

func invalidate(next echo.HandlerFunc, c echo.Context, rdb *redis.Client, genKey string, log *zap.Logger) error {
	err := next(c)
	if err == nil && c.Response().Status < http.StatusBadRequest {
		ctx := context.WithoutCancel(c.Request().Context())
		if ierr := rdb.Incr(ctx, genKey).Err(); ierr != nil {
			log.Warn("cache invalidation failed", zap.String("path", c.Path()), zap.Error(ierr))
		}
	}
	return err
}

// namespace is the first two segments of a route path: "/v1/contacts/:id"
// belongs to "/v1/contacts".
func namespace(path string) string {
	segs := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if len(segs) > 2 {
		segs = segs[:2]
	}
	return "/" + strings.Join(segs, "/")
}

func generationKey(prefix string) string {
	return prefix + ":gen"
}

// cacheKey identifies a response by namespace generation, caller, path and
// query string.
func cacheKey(prefix, ns string, gen int64, c echo.Context) string {
	r := c.Request()
	role := ""
	if id, ok := IdentityFrom(c); ok {
		role = string(id.Role)
	}
	tail := strings.Join([]string{userID(c), role, r.Method, r.URL.Path, r.URL.RawQuery}, "|")
	sum := sha1.Sum([]byte(tail))
	return fmt.Sprintf("%s:%s:%d:%x", prefix, ns, gen, sum[:])
}

// encodePayload packs [4 bytes status][4 bytes header length][header JSON][body].
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}
