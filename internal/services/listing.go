package services

import (
	"context"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/damacus/your-files/internal/logger"
	"github.com/damacus/your-files/internal/metrics"
	"github.com/damacus/your-files/internal/models"
	"github.com/damacus/your-files/internal/storage"
	"github.com/damacus/your-files/internal/utils"
)

// Lister turns delimiter listings into browser view models.
type Lister struct {
	store  storage.ObjectStore
	layout Layout
	now    func() time.Time
}

// NewLister creates a Lister over store.
func NewLister(store storage.ObjectStore, layout Layout) *Lister {
	return &Lister{store: store, layout: layout.Normalize(), now: time.Now}
}

// Layout returns the normalised layout.
func (l *Lister) Layout() Layout {
	return l.layout
}

// List returns every file and folder directly under prefix. An empty prefix
// lists the root, which also carries the big-data and shared folders.
func (l *Lister) List(ctx context.Context, prefix string) (listing *models.Listing, err error) {
	start := time.Now()
	defer func() {
		metrics.ListingsTotal.WithLabelValues(metrics.Status(err)).Inc()
		metrics.ListingDuration.Observe(time.Since(start).Seconds())
	}()

	p, err := l.layout.Resolve(prefix)
	if err != nil {
		return nil, err
	}

	var objects []storage.ObjectInfo
	var prefixes []string
	token := ""
	for {
		page, err := l.store.List(ctx, storage.ListOptions{
			Prefix:            p,
			Delimiter:         storage.Delimiter,
			ContinuationToken: token,
		})
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("prefix", p).Msg("listing failed")
			return nil, err
		}
		objects = append(objects, page.Objects...)
		prefixes = append(prefixes, page.CommonPrefixes...)
		if !page.IsTruncated || page.NextContinuationToken == "" {
			break
		}
		token = page.NextContinuationToken
	}

	listing = &models.Listing{
		Prefix:      p,
		Files:       l.files(p, objects),
		Folders:     l.folders(p, prefixes),
		Breadcrumbs: l.layout.Breadcrumbs(p),
	}
	logger.Ctx(ctx).Debug().
		Str("prefix", p).
		Int("files", len(listing.Files)).
		Int("folders", len(listing.Folders)).
		Msg("listed prefix")
	return listing, nil
}

func (l *Lister) files(prefix string, objects []storage.ObjectInfo) []models.File {
	now := l.now()
	files := make([]models.File, 0, len(objects))
	for _, obj := range objects {
		// The folder marker object.
		if obj.Key == prefix {
			continue
		}
		files = append(files, models.File{
			Name:           FileName(obj.Key),
			Key:            obj.Key,
			Size:           obj.Size,
			LastModified:   obj.LastModified,
			FormattedSize:  utils.BytesToSize(obj.Size),
			Modified:       humanize.RelTime(obj.LastModified, now, "ago", "from now"),
			CreateTableURL: l.layout.CreateTableLink(obj.Key),
		})
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].LastModified.After(files[j].LastModified)
	})
	return files
}

func (l *Lister) folders(prefix string, prefixes []string) []models.Folder {
	atRoot := prefix == l.layout.RootPrefix
	folders := make([]models.Folder, 0, len(prefixes)+len(l.layout.SharedPrefixes)+1)

	if atRoot {
		if l.layout.BigDataPrefix != "" {
			folders = append(folders, models.Folder{
				Name:      FolderName(l.layout.BigDataPrefix),
				Prefix:    l.layout.BigDataPrefix,
				IsBigData: true,
			})
		}
		for _, s := range l.layout.SharedPrefixes {
			folders = append(folders, models.Folder{
				Name:           FolderName(s),
				Prefix:         s,
				IsSharedFolder: true,
			})
		}
	}

	for _, cp := range prefixes {
		if cp == prefix {
			continue
		}
		if atRoot && cp == l.layout.BigDataPrefix {
			continue
		}
		folders = append(folders, models.Folder{
			Name:   FolderName(cp),
			Prefix: cp,
		})
	}
	return folders
}
