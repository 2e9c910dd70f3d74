package audioserver

import (
	"net/url"
	"strings"

	"tempo/internal/library"
	"tempo/internal/services"
)

// TrackURL maps a library location under root to its static URL on base.
func TrackURL(base, root, location string) (string, error) {
	p, err := library.LocationToPath(location)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "audioserver", "track url", location, err)
	}
	rel, ok := library.RelativeTo(root, p)
	if !ok {
		return "", services.Wrap(services.ErrValidation, "audioserver", "track url", p+" is outside "+root, nil)
	}
	return join(base, rel), nil
}

// ConvertedURL maps a converted output path to its URL on base.
func ConvertedURL(base, folder, output string) (string, error) {
	rel, ok := library.RelativeTo(folder, output)
	if !ok {
		return "", services.Wrap(services.ErrValidation, "audioserver", "converted url", output+" is outside "+folder, nil)
	}
	return join(base, "converted/"+rel), nil
}

func join(base, rel string) string {
	u := url.URL{Path: "/" + rel}
	return strings.TrimRight(base, "/") + u.EscapedPath()
}
