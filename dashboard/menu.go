package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-authgate/dashboard-cli/session"
)

const (
	myMenuPath  = "/restaurant/my-menu"
	addMenuPath = "/restaurant/addMenu"

	menuPartName  = "menu"
	filesPartName = "files"
)

// Image is a picture uploaded with a menu item.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// LoadImage reads an image from disk, sniffing its content type.
func LoadImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read image: %w", err)
	}
	return Image{
		Filename:    filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

// MenuItems lists the signed-in restaurant's dishes.
func (s *Service) MenuItems(ctx context.Context) ([]MenuItem, error) {
	items, err := session.FetchJSON[[]MenuItem](ctx, s.client, http.MethodGet, myMenuPath, nil)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].normalize()
	}
	return items, nil
}

// CreateMenuItem uploads a new dish together with its images.
func (s *Service) CreateMenuItem(
	ctx context.Context,
	restaurantID int64,
	item MenuItemRequest,
	images []Image,
) (*MenuItem, error) {
	item.RestaurantID = restaurantID
	return s.uploadMenuItem(ctx, http.MethodPost, addMenuPath, item, images)
}

// UpdateMenuItem replaces a dish. images are added to the existing ones.
func (s *Service) UpdateMenuItem(
	ctx context.Context,
	menuID int64,
	item MenuItemRequest,
	images []Image,
) (*MenuItem, error) {
	return s.uploadMenuItem(ctx, http.MethodPut, menuItemPath(menuID), item, images)
}

func (s *Service) DeleteMenuItem(ctx context.Context, menuID int64) error {
	return s.exec(ctx, http.MethodDelete, menuItemPath(menuID), nil)
}

func menuItemPath(menuID int64) string {
	return "/restaurant/menu/" + strconv.FormatInt(menuID, 10)
}

func (s *Service) uploadMenuItem(
	ctx context.Context,
	method, path string,
	item MenuItemRequest,
	images []Image,
) (*MenuItem, error) {
	body, contentType, err := encodeMenuForm(item, images)
	if err != nil {
		return nil, err
	}

	req, err := s.client.NewRequest(ctx, method, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	out, err := session.DecodeJSON[*MenuItem](resp)
	if err != nil {
		return nil, err
	}
	if out != nil {
		out.normalize()
	}
	return out, nil
}

// encodeMenuForm builds the multipart body: the item as JSON in the "menu"
// field, then one "files" part per image.
func encodeMenuForm(item MenuItemRequest, images []Image) ([]byte, string, error) {
	menu, err := json.Marshal(item)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode menu item: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField(menuPartName, string(menu)); err != nil {
		return nil, "", err
	}

	for i, img := range images {
		name := img.Filename
		if name == "" {
			name = "image-" + strconv.Itoa(i+1)
		}
		ct := img.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			filesPartName, escapeQuotes(name)))
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
