package autosense

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

func saveBytesToFileName(bytes []byte, tmpFileName string) error {
	return os.WriteFile(tmpFileName, bytes, 0600)
}

func url2bytes(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {

	var client = &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned %s", StripPasswordFromUrlString(url), resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// createTempFileName generating a file name within of a temp directory. If function argument ist empty string
// file name will be generated in ksuid format.
func createTempFileName(fileName string) string {
	if fileName == "" {
		fileName = ksuid.New().String()
	}
	return filepath.Join(os.TempDir(), fileName)
}

func removeTempFile(name string) {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("component", "OCR_UTIL").Msg(name + " could not be removed")
	}
}

// detectImageType sniffs the magic bytes of an upload, only used for logging
// since decoding decides what is acceptable.
func detectImageType(buffer []byte) string {
	switch {
	case bytes.HasPrefix(buffer, []byte{0x89, 'P', 'N', 'G'}):
		return "PNG"
	case bytes.HasPrefix(buffer, []byte{0xff, 0xd8, 0xff}):
		return "JPEG"
	case bytes.HasPrefix(buffer, []byte("GIF8")):
		return "GIF"
	case bytes.HasPrefix(buffer, []byte("%PDF")):
		return "PDF"
	}
	return "UNKNOWN"
}

// timeTrack used to measure time of selected operations
func timeTrack(start time.Time, operation string, message string, requestID string) {
	elapsed := time.Since(start)
	event := log.Debug().Str("component", "TIMING").Dur(operation, elapsed)
	if requestID != "" {
		event = event.Str("RequestID", requestID)
	}
	event.Msg(message)
}

// StripPasswordFromUrl strips passwords from URL
func StripPasswordFromUrl(urlToLog *url.URL) string {

	pass, passSet := urlToLog.User.Password()

	if passSet {
		return strings.Replace(urlToLog.String(), pass+"@", "***@", 1)
	}
	return urlToLog.String()
}

func StripPasswordFromUrlString(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<unparsable url>"
	}
	return StripPasswordFromUrl(u)
}
