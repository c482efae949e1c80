package autosense

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const DefaultPageSegMode = "6"

// This variant of the TesseractBackend calls tesseract via exec
type TesseractBackend struct {
	Binary string
	Args   TesseractArgs
	// Scored switches tesseract to tsv output, which carries per word
	// confidences that are folded into per line values.
	Scored    bool
	SaveFiles bool
}

type TesseractArgs struct {
	ConfigVars  map[string]string `json:"config_vars"`
	PageSegMode string            `json:"psm"`
	Lang        string            `json:"lang"`
}

func NewTesseractBackend(args TesseractArgs) *TesseractBackend {
	if args.PageSegMode == "" {
		args.PageSegMode = DefaultPageSegMode
	}
	return &TesseractBackend{
		Binary: "tesseract",
		Args:   args,
	}
}

// return a slice that can be passed to tesseract binary as command line
// args, eg, ["-c", "tessedit_char_whitelist=0123456789", "-c", "foo=bar"]
func (t TesseractArgs) Export() []string {
	var result []string
	keys := make([]string, 0, len(t.ConfigVars))
	for k := range t.ConfigVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		result = append(result, "-c", fmt.Sprintf("%s=%s", k, t.ConfigVars[k]))
	}
	if t.PageSegMode != "" {
		result = append(result, "--psm", t.PageSegMode)
	}
	if t.Lang != "" {
		result = append(result, "-l", t.Lang)
	}

	return result
}

func (t *TesseractBackend) Type() BackendType {
	return BackendTesseract
}

func (t *TesseractBackend) binary() string {
	if t.Binary == "" {
		return "tesseract"
	}
	return t.Binary
}

func (t *TesseractBackend) Available(ctx context.Context) bool {
	_, err := exec.LookPath(t.binary())
	return err == nil
}

func (t *TesseractBackend) Recognize(ctx context.Context, img NormalizedImage) ([]RawTextLine, error) {
	pngBytes, err := img.EncodePNG()
	if err != nil {
		return nil, err
	}
	return t.RecognizeBytes(ctx, pngBytes, t.Args)
}

// RecognizeBytes runs tesseract on an already encoded image. Zero args fall
// back to the backend's own.
func (t *TesseractBackend) RecognizeBytes(ctx context.Context, imgBytes []byte, args TesseractArgs) ([]RawTextLine, error) {
	if args.PageSegMode == "" && args.Lang == "" && len(args.ConfigVars) == 0 {
		args = t.Args
	}

	// the tesseract binary only reads from files
	tmpFileName := createTempFileName("") + ".png"
	if err := saveBytesToFileName(imgBytes, tmpFileName); err != nil {
		log.Error().Err(err).Str("component", "OCR_TESSERACT").Msg("error writing tmp image")
		return nil, err
	}
	if !t.SaveFiles {
		defer removeTempFile(tmpFileName)
	}

	return t.processImageFile(ctx, tmpFileName, args)
}

func (t *TesseractBackend) processImageFile(ctx context.Context, inputFilename string, args TesseractArgs) ([]RawTextLine, error) {

	// if the input filename is /tmp/ocrimage.png, set the output file basename
	// to /tmp/ocrimage.png as well, which will produce /tmp/ocrimage.png.txt output
	tmpOutFileBaseName := inputFilename

	cmdArgs := []string{inputFilename, tmpOutFileBaseName}
	cmdArgs = append(cmdArgs, args.Export()...)
	fileExtensions := []string{"txt"}
	if t.Scored {
		cmdArgs = append(cmdArgs, "tsv")
		fileExtensions = []string{"tsv"}
	}
	log.Debug().Str("component", "OCR_TESSERACT").Strs("cmdArgs", cmdArgs).Msg("exec tesseract")

	cmd := exec.CommandContext(ctx, t.binary(), cmdArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Error().Err(err).Str("component", "OCR_TESSERACT").Msg(string(output))
		return nil, fmt.Errorf("tesseract failed: %w", err)
	}

	outBytes, outFile, err := findAndReadOutfile(tmpOutFileBaseName, fileExtensions)
	if err != nil {
		log.Error().Err(err).Str("component", "OCR_TESSERACT").
			Str("file_name", tmpOutFileBaseName).Msg("Error getting data from out file")
		return nil, err
	}
	if !t.SaveFiles {
		defer removeTempFile(outFile)
	}

	if t.Scored {
		return parseTesseractTSV(string(outBytes))
	}
	return parseTesseractText(string(outBytes)), nil
}

func findOutfile(outfileBaseName string, fileExtensions []string) (string, error) {

	for _, fileExtension := range fileExtensions {

		outFile := fmt.Sprintf("%v.%v", outfileBaseName, fileExtension)
		if _, err := os.Stat(outFile); err == nil {
			return outFile, nil
		}

	}

	return "", fmt.Errorf("could not find outfile. Basename: %v Extensions: %v", outfileBaseName, fileExtensions)

}

func findAndReadOutfile(outfileBaseName string, fileExtensions []string) (outBytes []byte, outfile string, err error) {

	outfile, err = findOutfile(outfileBaseName, fileExtensions)
	if err != nil {
		return nil, "", err
	}
	outBytes, err = os.ReadFile(outfile)
	if err != nil {
		return nil, "", err
	}
	return outBytes, outfile, nil

}

// parseTesseractText keeps every non blank line, trimmed.
func parseTesseractText(text string) []RawTextLine {
	var lines []RawTextLine
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		lines = append(lines, RawTextLine{Text: l})
	}
	return lines
}

type tsvLineKey struct {
	page, block, par, line int
}

// parseTesseractTSV folds word rows (level 5) into lines keyed by
// page/block/paragraph/line, averaging word confidence.
func parseTesseractTSV(tsv string) ([]RawTextLine, error) {
	var (
		order  []tsvLineKey
		words  = make(map[tsvLineKey][]string)
		confs  = make(map[tsvLineKey]float64)
		region = make(map[tsvLineKey]image.Rectangle)
	)

	scanner := bufio.NewScanner(strings.NewReader(tsv))
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 12 || fields[0] != "5" {
			continue
		}
		text := strings.TrimSpace(fields[11])
		if text == "" {
			continue
		}
		nums := make([]int, 10)
		for i := 0; i < 10; i++ {
			n, err := strconv.Atoi(fields[i])
			if err != nil {
				return nil, fmt.Errorf("tsv column %d: %w", i, err)
			}
			nums[i] = n
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil {
			return nil, fmt.Errorf("tsv confidence: %w", err)
		}

		key := tsvLineKey{page: nums[1], block: nums[2], par: nums[3], line: nums[4]}
		if _, ok := words[key]; !ok {
			order = append(order, key)
		}
		words[key] = append(words[key], text)
		confs[key] += conf
		box := image.Rect(nums[6], nums[7], nums[6]+nums[8], nums[7]+nums[9])
		region[key] = region[key].Union(box)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	lines := make([]RawTextLine, 0, len(order))
	for _, key := range order {
		lines = append(lines, RawTextLine{
			Text:       strings.Join(words[key], " "),
			Region:     region[key],
			Confidence: confs[key] / float64(len(words[key])),
			Scored:     true,
		})
	}
	return lines, nil
}
