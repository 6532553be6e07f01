// Package extractor implements the protocol's inscription extractor (§4.1,
// component A): turning a transaction's raw witness data into candidate
// BRC-20 inscriptions. It never errors on malformed input — every failure
// mode is a silent skip, since witnesses carrying unrelated inscriptions
// (images, text, other protocols) vastly outnumber BRC-20 ones on a live
// chain.
package extractor

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"unicode/utf8"

	"github.com/brc20network/indexer/internal/models"
	"github.com/brc20network/indexer/internal/node"
)

var mimeMarkers = [][]byte{
	[]byte("text/plain"),
	[]byte("application/json"),
}

// Extract returns every candidate BRC-20 inscription found in tx's inputs,
// in input order (§4.1 — "the validator later decides which are applied").
func Extract(tx node.RawTx) []models.Inscription {
	var out []models.Inscription

	for _, vin := range tx.Vin {
		insc, ok := extractFromWitness(vin.Witness)
		if !ok {
			continue
		}
		out = append(out, insc)
	}

	return out
}

// extractFromWitness concatenates one input's witness stack and attempts
// to pull a single BRC-20 inscription out of it (§4.1 algorithm).
func extractFromWitness(witness [][]byte) (models.Inscription, bool) {
	if len(witness) == 0 {
		return models.Inscription{}, false
	}

	var buf bytes.Buffer
	for _, item := range witness {
		buf.Write(item)
	}
	data := buf.Bytes()

	markerStart, markerEnd := -1, -1
	for _, marker := range mimeMarkers {
		if idx := bytes.Index(data, marker); idx != -1 && (markerStart == -1 || idx < markerStart) {
			markerStart = idx
			markerEnd = idx + len(marker)
		}
	}
	if markerStart == -1 {
		return models.Inscription{}, false
	}

	window := data[markerEnd:]
	start := bytes.IndexByte(window, '{')
	end := bytes.LastIndexByte(window, '}')
	if start == -1 || end == -1 || end < start {
		return models.Inscription{}, false
	}
	candidate := window[start : end+1]

	if !utf8.Valid(candidate) {
		slog.Debug("extractor: non-UTF-8 inscription candidate skipped")
		return models.Inscription{}, false
	}

	var insc models.Inscription
	if err := json.Unmarshal(candidate, &insc); err != nil {
		slog.Debug("extractor: malformed inscription JSON skipped", "error", err)
		return models.Inscription{}, false
	}

	if insc.Protocol != models.BRC20Protocol {
		return models.Inscription{}, false
	}

	return insc, true
}
