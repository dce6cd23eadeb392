// Package attachments moves event media from the owning channel into
// the central file store and returns stable references.
package attachments

import (
	"OmniHub/entity"
	"OmniHub/internal/config"
	"OmniHub/internal/lib/fileurl"
	"OmniHub/internal/lib/sl"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"
)

// MediaRPC is the broker request/reply client for the channel and file
// store collaborators.
type MediaRPC interface {
	MediaFetch(ctx context.Context, req entity.MediaFetchRequest) (*entity.MediaFetchResponse, error)
	FileUpload(ctx context.Context, req entity.FileUploadRequest) (*entity.FileUploadResponse, error)
}

// FileStore archives fetched binaries for the signed download endpoint.
type FileStore interface {
	SaveFile(filename string, data []byte, meta entity.FileMetadata) (string, error)
}

type Pipeline struct {
	rpc        MediaRPC
	store      FileStore
	signSecret string
	urlTTL     time.Duration
	log        *slog.Logger
}

func NewPipeline(rpc MediaRPC, store FileStore, conf *config.Config, log *slog.Logger) *Pipeline {
	return &Pipeline{
		rpc:        rpc,
		store:      store,
		signSecret: conf.Files.SignSecret,
		urlTTL:     time.Duration(conf.Files.URLTTLMin) * time.Minute,
		log:        log.With(sl.Module("attachments")),
	}
}

// Process fetches and stores every media reference on the event.
// A failing attachment is logged and skipped; the event itself is never
// failed over media. When nothing could be stored but the event carries
// a direct media URL, a single reference is synthesized from that URL
// without fetching the binary (degraded mode).
func (p *Pipeline) Process(ctx context.Context, ev entity.ChannelEvent, messageID string) []entity.AttachmentRef {
	var refs []entity.AttachmentRef

	for _, media := range ev.Media {
		ref, err := p.processOne(ctx, ev, messageID, media)
		if err != nil {
			p.log.Warn("skipping attachment",
				slog.String("media_id", media.MediaID),
				slog.String("message_id", messageID),
				sl.Err(err),
			)
			continue
		}
		refs = append(refs, *ref)
	}

	if len(refs) == 0 && ev.MediaURL != "" {
		refs = append(refs, p.synthesizeFromURL(ev.MediaURL))
	}

	return refs
}

func (p *Pipeline) processOne(ctx context.Context, ev entity.ChannelEvent, messageID string, media entity.MediaRef) (*entity.AttachmentRef, error) {
	fetched, err := p.rpc.MediaFetch(ctx, entity.MediaFetchRequest{
		MediaID:      media.MediaID,
		ConnectionID: ev.ConnectionID,
		CompanyID:    ev.CompanyID,
	})
	if err != nil {
		return nil, err
	}
	if !fetched.Success {
		return nil, fmt.Errorf("media fetch rejected: %s", fetched.Error)
	}

	filename := media.Filename
	if filename == "" {
		filename = fetched.Filename
	}
	if filename == "" {
		filename = media.MediaID
	}
	mimeType := media.MimeType
	if mimeType == "" {
		mimeType = fetched.MimeType
	}

	sum := sha256.Sum256(fetched.Data)

	uploaded, err := p.rpc.FileUpload(ctx, entity.FileUploadRequest{
		File:      fetched.Data,
		Filename:  filename,
		MimeType:  mimeType,
		CompanyID: ev.CompanyID,
		Metadata: map[string]string{
			"channel":       ev.Channel,
			"connection_id": ev.ConnectionID,
			"message_id":    messageID,
			"direction":     ev.Direction,
		},
	})
	if err != nil {
		return nil, err
	}
	if !uploaded.Success {
		return nil, fmt.Errorf("file upload rejected: %s", uploaded.Error)
	}

	url := uploaded.URL
	if url == "" && p.store != nil && p.signSecret != "" {
		// The file store gave no public URL; archive the binary locally
		// and hand out a signed link to the download endpoint instead.
		localID, serr := p.store.SaveFile(filename, fetched.Data, entity.FileMetadata{
			CompanyID:    ev.CompanyID,
			ConnectionID: ev.ConnectionID,
			MessageID:    messageID,
			Channel:      ev.Channel,
			MimeType:     mimeType,
		})
		if serr != nil {
			p.log.Warn("archive attachment binary",
				slog.String("media_id", media.MediaID),
				sl.Err(serr),
			)
		} else {
			url = fileurl.SignURL(localID, p.signSecret, p.urlTTL)
		}
	}

	return &entity.AttachmentRef{
		FileID:          uploaded.ID,
		URL:             url,
		Name:            filename,
		MimeType:        mimeType,
		Size:            uploaded.Size,
		OriginalMediaID: media.MediaID,
		Caption:         media.Caption,
		SHA256:          hex.EncodeToString(sum[:]),
	}, nil
}

// synthesizeFromURL builds a best-effort reference straight from the
// provider URL. The binary is not fetched and the URL is not verified.
func (p *Pipeline) synthesizeFromURL(mediaURL string) entity.AttachmentRef {
	name := path.Base(mediaURL)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return entity.AttachmentRef{
		URL:  mediaURL,
		Name: name,
	}
}
