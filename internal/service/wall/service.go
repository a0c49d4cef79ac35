package wall

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mural-app/birthday-wall/internal/event"
	"github.com/mural-app/birthday-wall/internal/model/wall"
	"github.com/mural-app/birthday-wall/internal/storage"
)

const (
	// MaxUploadSize caps single-file uploads at 100 MB.
	MaxUploadSize = 100 << 20

	maxTextLength = 200
)

var (
	ErrTextRequired    = errors.New("text is required")
	ErrTextTooLong     = errors.New("text must be at most 200 characters")
	ErrAuthorRequired  = errors.New("author is required")
	ErrNoFiles         = errors.New("no files found in upload")
	ErrFileTooLarge    = errors.New("file exceeds the 100MB limit")
	ErrInvalidFileType = errors.New("only images and videos are allowed")

	// ErrNotFound mirrors the storage sentinel for handler convenience.
	ErrNotFound = storage.ErrNotFound
)

// Upload carries one file from a multipart request into the service.
type Upload struct {
	OriginalName string
	ContentType  string
	Size         int64
	Data         io.Reader
}

// Service owns the write path: every successful mutation persists
// first and then publishes the matching event on the bus. A crash
// between the two silently drops the notification; the next refresh
// picks the change up from the store.
type Service struct {
	store  *storage.SQLite
	files  *storage.FileStore
	bus    *event.Bus
	logger *slog.Logger
}

// NewService wires the store, blob store and event bus together.
func NewService(store *storage.SQLite, files *storage.FileStore, bus *event.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		files:  files,
		bus:    bus,
		logger: logger.With("component", "wall"),
	}
}

// CreateMessage validates, persists and announces a new message.
// An empty color gets one drawn from the palette at creation time.
func (s *Service) CreateMessage(ctx context.Context, text, author, color string) (wall.Message, error) {
	text = strings.TrimSpace(text)
	author = strings.TrimSpace(author)

	if text == "" {
		return wall.Message{}, ErrTextRequired
	}
	if len([]rune(text)) > maxTextLength {
		return wall.Message{}, ErrTextTooLong
	}
	if author == "" {
		return wall.Message{}, ErrAuthorRequired
	}
	if color == "" {
		color = wall.RandomColor()
	}

	msg := wall.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Author:    author,
		Color:     color,
		Timestamp: time.Now().UTC(),
	}

	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return wall.Message{}, err
	}

	s.bus.Publish(wall.NewMessageCreated(msg))
	return msg, nil
}

// DeleteMessage removes a message and announces the deletion.
func (s *Service) DeleteMessage(ctx context.Context, id string) error {
	if err := s.store.DeleteMessage(ctx, id); err != nil {
		return err
	}
	s.bus.Publish(wall.NewMessageDeleted(id))
	return nil
}

// ListMessages returns one page of messages, newest first.
func (s *Service) ListMessages(ctx context.Context, page, limit int) (wall.Page[wall.Message], error) {
	total, err := s.store.CountMessages(ctx)
	if err != nil {
		return wall.Page[wall.Message]{}, err
	}

	messages, err := s.store.ListMessages(ctx, limit, (page-1)*limit)
	if err != nil {
		return wall.Page[wall.Message]{}, err
	}

	return wall.Page[wall.Message]{
		Data:       messages,
		Pagination: wall.NewPagination(page, limit, total),
	}, nil
}

// UploadMedia validates every file before saving any, then persists
// and announces each one individually.
func (s *Service) UploadMedia(ctx context.Context, uploads []Upload) ([]wall.MediaWithURL, error) {
	if len(uploads) == 0 {
		return nil, ErrNoFiles
	}

	for _, up := range uploads {
		if up.Size > MaxUploadSize {
			return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, up.OriginalName)
		}
		if mediaTypeOf(up.ContentType) == "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidFileType, up.OriginalName)
		}
	}

	saved := make([]wall.MediaWithURL, 0, len(uploads))
	for _, up := range uploads {
		if up.Size == 0 {
			continue
		}

		media, err := s.saveOne(ctx, up)
		if err != nil {
			return nil, err
		}
		saved = append(saved, media)
	}
	return saved, nil
}

func (s *Service) saveOne(ctx context.Context, up Upload) (wall.MediaWithURL, error) {
	// Sniff the first bytes: the declared Content-Type is attacker
	// controlled, the magic numbers are not.
	head := make([]byte, 3072)
	n, err := io.ReadFull(up.Data, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return wall.MediaWithURL{}, fmt.Errorf("reading upload: %w", err)
	}
	head = head[:n]

	sniffed := mimetype.Detect(head).String()
	mediaType := mediaTypeOf(sniffed)
	if mediaType == "" {
		return wall.MediaWithURL{}, fmt.Errorf("%w: %s", ErrInvalidFileType, up.OriginalName)
	}

	id := uuid.NewString()
	filename := id + extensionOf(up.OriginalName)

	if err := s.files.Save(filename, io.MultiReader(bytes.NewReader(head), up.Data)); err != nil {
		return wall.MediaWithURL{}, err
	}

	media := wall.MediaFile{
		ID:           id,
		Filename:     filename,
		OriginalName: up.OriginalName,
		Type:         mediaType,
		Size:         up.Size,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.store.InsertMedia(ctx, media); err != nil {
		return wall.MediaWithURL{}, err
	}

	withURL := media.WithURL()
	s.bus.Publish(wall.NewMediaUploaded(withURL))
	return withURL, nil
}

// DeleteMedia removes the database row first, announces the deletion,
// and only then tries the blob. Blob cleanup is best-effort: once the
// row is gone the item is deleted no matter what the filesystem says.
func (s *Service) DeleteMedia(ctx context.Context, id string) error {
	media, err := s.store.GetMediaByID(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	known := err == nil

	if err := s.store.DeleteMedia(ctx, id); err != nil {
		return err
	}
	s.bus.Publish(wall.NewMediaDeleted(id))

	if known {
		if err := s.files.Delete(media.Filename); err != nil {
			s.logger.Warn("could not remove media blob", "id", id, "filename", media.Filename, "error", err)
		}
	}
	return nil
}

// ListMedia returns one page of media records, newest first, each
// augmented with its serve-by-id URL.
func (s *Service) ListMedia(ctx context.Context, page, limit int) (wall.Page[wall.MediaWithURL], error) {
	total, err := s.store.CountMedia(ctx)
	if err != nil {
		return wall.Page[wall.MediaWithURL]{}, err
	}

	files, err := s.store.ListMedia(ctx, limit, (page-1)*limit)
	if err != nil {
		return wall.Page[wall.MediaWithURL]{}, err
	}

	return wall.Page[wall.MediaWithURL]{
		Data:       lo.Map(files, func(m wall.MediaFile, _ int) wall.MediaWithURL { return m.WithURL() }),
		Pagination: wall.NewPagination(page, limit, total),
	}, nil
}

// OpenMedia resolves a media id to its record and blob contents.
// Either a missing row or a missing blob yields ErrNotFound.
func (s *Service) OpenMedia(ctx context.Context, id string) (wall.MediaFile, io.ReadCloser, error) {
	media, err := s.store.GetMediaByID(ctx, id)
	if err != nil {
		return wall.MediaFile{}, nil, err
	}

	blob, err := s.files.Open(media.Filename)
	if err != nil {
		return wall.MediaFile{}, nil, err
	}
	return media, blob, nil
}

// ContentTypeFor derives the serve-path MIME type from the stored
// media type and the filename extension.
func ContentTypeFor(media wall.MediaFile) string {
	ext := strings.TrimPrefix(filepath.Ext(media.Filename), ".")
	if ext == "" {
		return "application/octet-stream"
	}
	if ext == "jpg" {
		ext = "jpeg"
	}
	return string(media.Type) + "/" + ext
}

func mediaTypeOf(contentType string) wall.MediaType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return wall.MediaImage
	case strings.HasPrefix(contentType, "video/"):
		return wall.MediaVideo
	default:
		return ""
	}
}

func extensionOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
