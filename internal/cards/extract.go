// Package cards reads structured character-card metadata out of PNG files.
// Card data lives in a tEXt (or zTXt) chunk keyed "chara", holding base64 of
// a JSON document (v2 spec: {"spec":"chara_card_v2","data":{...}}, v1: flat).
// The stdlib png decoder drops ancillary chunks, so the chunk walk is done by
// hand on the raw stream.
package cards

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/wt7141789/ST-Manager/pkg/models"
)

// Extractor is the deep-data fetch collaborator used by the scanner and the
// automation pipeline. A nil CardInfo without error never happens; a card
// with no embedded record yields ErrNoCardData.
type Extractor interface {
	Extract(ctx context.Context, path string) (*models.CardInfo, error)
}

// ErrNoCardData is returned when the file carries no chara chunk.
var ErrNoCardData = fmt.Errorf("no embedded card data")

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// maxChunkSize bounds a single chunk read so a corrupt length field cannot
// allocate gigabytes.
const maxChunkSize = 32 << 20

// PNGExtractor implements Extractor against local card files.
type PNGExtractor struct{}

// Extract reads the chara chunk of the PNG at path and decodes it.
func (PNGExtractor) Extract(ctx context.Context, path string) (*models.CardInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open card: %w", err)
	}
	defer f.Close()

	raw, err := findCharaChunk(ctx, f)
	if err != nil {
		return nil, err
	}
	return decodeCardJSON(raw)
}

func findCharaChunk(ctx context.Context, r io.Reader) ([]byte, error) {
	sig := make([]byte, 8)
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, fmt.Errorf("read png signature: %w", err)
	}
	if !bytes.Equal(sig, pngSignature) {
		return nil, fmt.Errorf("not a png file")
	}

	header := make([]byte, 8)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, ErrNoCardData
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		length := binary.BigEndian.Uint32(header[:4])
		ctype := string(header[4:8])
		if length > maxChunkSize {
			return nil, fmt.Errorf("chunk %s too large: %d bytes", ctype, length)
		}

		switch ctype {
		case "tEXt", "zTXt":
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("read %s chunk: %w", ctype, err)
			}
			// skip CRC
			if _, err := io.CopyN(io.Discard, r, 4); err != nil {
				return nil, fmt.Errorf("skip crc: %w", err)
			}
			payload, ok, err := charaPayload(ctype, data)
			if err != nil {
				return nil, err
			}
			if ok {
				return payload, nil
			}
		case "IEND":
			return nil, ErrNoCardData
		default:
			if _, err := io.CopyN(io.Discard, r, int64(length)+4); err != nil {
				return nil, fmt.Errorf("skip chunk %s: %w", ctype, err)
			}
		}
	}
}

// charaPayload splits keyword\0text and base64-decodes the text when the
// keyword is "chara".
func charaPayload(ctype string, data []byte) ([]byte, bool, error) {
	sep := bytes.IndexByte(data, 0)
	if sep < 0 || string(data[:sep]) != "chara" {
		return nil, false, nil
	}
	text := data[sep+1:]
	if ctype == "zTXt" {
		// one method byte, then zlib stream
		if len(text) < 2 {
			return nil, false, nil
		}
		zr, err := zlib.NewReader(bytes.NewReader(text[1:]))
		if err != nil {
			return nil, false, fmt.Errorf("open zTXt stream: %w", err)
		}
		defer zr.Close()
		text, err = io.ReadAll(io.LimitReader(zr, maxChunkSize))
		if err != nil {
			return nil, false, fmt.Errorf("inflate zTXt: %w", err)
		}
	}
	decoded, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return nil, false, fmt.Errorf("decode chara chunk: %w", err)
	}
	return decoded, true, nil
}

// cardDoc is the embedded JSON shape: v2 wraps everything in "data",
// v1 is the flat block itself.
type cardDoc struct {
	Spec string    `json:"spec"`
	Data *cardData `json:"data"`
	cardData
}

type cardData struct {
	Name          string                     `json:"name"`
	Version       string                     `json:"character_version"`
	Description   string                     `json:"description"`
	Personality   string                     `json:"personality"`
	Scenario      string                     `json:"scenario"`
	FirstMessage  string                     `json:"first_mes"`
	MessageExample string                    `json:"mes_example"`
	CharacterBook *models.CharacterBook      `json:"character_book"`
	Extensions    map[string]json.RawMessage `json:"extensions"`
}

func decodeCardJSON(raw []byte) (*models.CardInfo, error) {
	var doc cardDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode card json: %w", err)
	}
	data := &doc.cardData
	if doc.Data != nil {
		data = doc.Data
	}

	info := &models.CardInfo{
		Name:       data.Name,
		Version:    data.Version,
		TokenCount: estimateTokens(data),
	}
	if data.CharacterBook != nil || data.Extensions != nil {
		info.Deep = &models.DeepData{
			CharacterBook: data.CharacterBook,
			Extensions:    data.Extensions,
		}
	}
	return info, nil
}

// estimateTokens approximates the prompt cost of a card: one token per four
// characters of its prose fields.
func estimateTokens(d *cardData) int {
	chars := len(d.Description) + len(d.Personality) + len(d.Scenario) +
		len(d.FirstMessage) + len(d.MessageExample)
	return chars / 4
}
