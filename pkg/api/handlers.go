package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ssargent/tfrecord/pkg/codec"
	"github.com/ssargent/tfrecord/pkg/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Server holds the API server state
type Server struct {
	stream  IRecordStream
	config  ServerConfig
	metrics *Metrics
	codec   *codec.RecordCodec
	log     zerolog.Logger
}

// NewServer creates a new API server
func NewServer(stream IRecordStream, config ServerConfig, metrics *Metrics, log zerolog.Logger) *Server {
	return &Server{
		stream:  stream,
		config:  config,
		metrics: metrics,
		codec:   codec.NewRecordCodec(codec.WithMaxRecordSize(config.maxRecordSize())),
		log:     log,
	}
}

// readBody reads at most limit bytes of the request body. It reports false
// after sending the error response.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, fmt.Sprintf("Request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
			return nil, false
		}
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Get the health status of the API
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Router			/health [get]
//	@Security		ApiKeyAuth
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handleAppend godoc
//
//	@Summary		Append a record
//	@Description	Frame the request body as one record and append it to the stream
//	@Tags			records
//	@Accept			octet-stream
//	@Produce		json
//	@Param			body	body		[]byte	true	"Payload"
//	@Success		200		{object}	AppendResponse
//	@Failure		413		{object}	APIResponse
//	@Failure		500		{object}	APIResponse
//	@Router			/records [post]
//	@Security		ApiKeyAuth
func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	payload, ok := readBody(w, r, int64(s.config.maxRecordSize()))
	if !ok {
		s.metrics.RecordOperation("append", false, 0, time.Since(start))
		return
	}

	entry, err := s.stream.Append(payload)
	if err != nil {
		s.metrics.RecordOperation("append", false, 0, time.Since(start))
		if errors.Is(err, codec.ErrSizeOverflow) {
			sendDecodeError(w, err, http.StatusRequestEntityTooLarge)
			return
		}
		s.log.Error().Err(err).Msg("append failed")
		sendError(w, "Failed to append record", http.StatusInternalServerError)
		return
	}

	s.metrics.RecordOperation("append", true, len(payload), time.Since(start))
	sendSuccess(w, AppendResponse{
		Ordinal: entry.Ordinal,
		Offset:  entry.Offset,
		Size:    entry.Size,
	})
}

// handleGetRecord godoc
//
//	@Summary		Read a record
//	@Description	Return the verified payload of the record starting at offset
//	@Tags			records
//	@Produce		octet-stream
//	@Param			offset	path		int	true	"Record offset"
//	@Success		200		{string}	binary
//	@Failure		400		{object}	APIResponse
//	@Failure		404		{object}	APIResponse
//	@Failure		500		{object}	APIResponse
//	@Router			/records/{offset} [get]
//	@Security		ApiKeyAuth
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	offset, err := strconv.ParseInt(chi.URLParam(r, "offset"), 10, 64)
	if err != nil || offset < 0 {
		s.metrics.RecordOperation("read", false, 0, time.Since(start))
		sendError(w, "Offset must be a non-negative integer", http.StatusBadRequest)
		return
	}

	record, err := s.stream.Read(offset)
	if err != nil {
		s.metrics.RecordOperation("read", false, 0, time.Since(start))
		switch {
		case errors.Is(err, store.ErrRecordNotFound):
			sendError(w, fmt.Sprintf("No record at offset %d", offset), http.StatusNotFound)
		case codec.ErrorKind(err) != "":
			s.metrics.RecordDecodeFailure(codec.ErrorKind(err))
			s.log.Error().Err(err).Int64("offset", offset).Msg("stored record failed to decode")
			sendDecodeError(w, err, http.StatusInternalServerError)
		default:
			s.log.Error().Err(err).Int64("offset", offset).Msg("read failed")
			sendError(w, "Failed to read record", http.StatusInternalServerError)
		}
		return
	}

	s.metrics.RecordOperation("read", true, len(record.Payload), time.Since(start))

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Record-Offset", strconv.FormatInt(offset, 10))
	w.Header().Set("X-Record-Length", strconv.FormatUint(record.Length, 10))
	w.Header().Set("X-Record-Checksum", fmt.Sprintf("%08x", record.PayloadCRC))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(record.Payload)
}

// handleListRecords godoc
//
//	@Summary		List records
//	@Description	Page through the record index in file order
//	@Tags			records
//	@Produce		json
//	@Param			from	query		int	false	"First offset to include"
//	@Param			limit	query		int	false	"Maximum entries (default 100, max 1000)"
//	@Success		200		{object}	ListResponse
//	@Failure		400		{object}	APIResponse
//	@Router			/records [get]
//	@Security		ApiKeyAuth
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	from, err := queryInt(r, "from", 0)
	if err != nil || from < 0 {
		sendError(w, "from must be a non-negative integer", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		sendError(w, "limit must be a positive integer", http.StatusBadRequest)
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	entries := s.stream.Entries(from, int(limit)+1)
	response := ListResponse{Records: entries}
	if len(entries) > int(limit) {
		next := entries[limit].Offset
		response.Records = entries[:limit]
		response.Next = &next
	}

	sendSuccess(w, response)
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// handleStats godoc
//
//	@Summary		Stream statistics
//	@Description	Get the record count and size of the served stream
//	@Tags			diagnostics
//	@Produce		json
//	@Success		200	{object}	store.StreamStats
//	@Router			/stats [get]
//	@Security		ApiKeyAuth
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.stream.Stats()
	s.metrics.UpdateStreamStats(stats.Records, stats.DataSize)
	sendSuccess(w, stats)
}

// handleVerify godoc
//
//	@Summary		Verify a record stream
//	@Description	Strictly decode an uploaded record stream and report where it stops being valid
//	@Tags			codec
//	@Accept			octet-stream
//	@Produce		json
//	@Param			body	body		[]byte	true	"Record stream"
//	@Param			verify	query		bool	false	"Check checksums (default true)"
//	@Success		200		{object}	VerifyResponse
//	@Failure		422		{object}	VerifyResponse
//	@Router			/verify [post]
//	@Security		ApiKeyAuth
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	verify := true
	if raw := r.URL.Query().Get("verify"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			sendError(w, "verify must be a boolean", http.StatusBadRequest)
			return
		}
		verify = parsed
	}

	body, ok := readBody(w, r, s.config.maxBodySize())
	if !ok {
		return
	}

	scanner := codec.NewScanner(body,
		codec.WithVerify(verify),
		codec.WithMaxRecordSize(s.config.maxRecordSize()),
	)
	payloadBytes := 0
	for scanner.Next() {
		payloadBytes += len(scanner.Payload())
	}

	response := VerifyResponse{
		Valid:     scanner.Err() == nil,
		Records:   scanner.Count(),
		ValidSize: scanner.Consumed(),
		TotalSize: len(body),
	}

	if err := scanner.Err(); err != nil {
		s.metrics.RecordOperation("verify", false, payloadBytes, time.Since(start))
		s.metrics.RecordDecodeFailure(codec.ErrorKind(err))
		response.Error = err.Error()
		response.Kind = codec.ErrorKind(err)
		sendJSON(w, http.StatusUnprocessableEntity, APIResponse{
			Success: false,
			Data:    response,
			Error:   response.Error,
			Kind:    response.Kind,
		})
		return
	}

	s.metrics.RecordOperation("verify", true, payloadBytes, time.Since(start))
	sendSuccess(w, response)
}

// handleEncode godoc
//
//	@Summary		Encode a payload
//	@Description	Frame the request body as one record and return the record bytes
//	@Tags			codec
//	@Accept			octet-stream
//	@Produce		octet-stream
//	@Param			body	body		[]byte	true	"Payload"
//	@Success		200		{string}	binary
//	@Failure		413		{object}	APIResponse
//	@Router			/encode [post]
//	@Security		ApiKeyAuth
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	payload, ok := readBody(w, r, int64(s.config.maxRecordSize()))
	if !ok {
		return
	}

	record, err := s.codec.Encode(payload)
	if err != nil {
		sendDecodeError(w, err, http.StatusRequestEntityTooLarge)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(record)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(record)
}

// startMetricsUpdater periodically updates the stream gauges until ctx ends
func (s *Server) startMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.stream.Stats()
			s.metrics.UpdateStreamStats(stats.Records, stats.DataSize)
		}
	}
}
