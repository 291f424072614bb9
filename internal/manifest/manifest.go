package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"example.com/gbalink/internal/common"
	"example.com/gbalink/internal/crypto"
	"example.com/gbalink/internal/gba"
	"example.com/gbalink/internal/pk3"
)

// Item is one artifact. Path is relative to the manifest directory.
type Item struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Sha256   string `json:"sha256"`
	Type     string `json:"type"`
	Location string `json:"location,omitempty"`
	National uint16 `json:"national,omitempty"`
}

type Manifest struct {
	CreatedAt time.Time  `json:"createdAt"`
	ShaAlgo   string     `json:"shaAlgo"`
	Source    *Source    `json:"source,omitempty"`
	Items     []Item     `json:"items"`
	Signature *Signature `json:"signature,omitempty"`
}

// Signature points at the detached JWS written next to a signed manifest.
type Signature struct {
	Type          string `json:"type"`
	KeyID         string `json:"kid,omitempty"`
	SignatureFile string `json:"signatureFile,omitempty"`
}

// Source identifies the save image an export was taken from.
type Source struct {
	Image  string `json:"image"`
	Sha256 string `json:"sha256"`
	Slot   string `json:"slot"`
}

// Mismatch is an artifact whose bytes no longer match the manifest.
type Mismatch struct {
	Path   string
	Reason string
}

func (m Mismatch) String() string { return m.Path + ": " + m.Reason }

// Build hashes files under dir. names are relative to dir.
func Build(dir string, names []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, name := range names {
		hex, sz, err := common.Sha256OfFile(filepath.Join(dir, name))
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, Item{Path: filepath.ToSlash(name), Size: sz, Sha256: hex, Type: typeOf(name)})
	}
	return m, nil
}

func typeOf(name string) string {
	switch {
	case hasExt(name, ".pk3", ".3gpkm"):
		return "pk3"
	case hasExt(name, ".sav", ".srm"):
		return "save"
	case hasExt(name, ".ndjson", ".jsonl"):
		return "ndjson"
	case hasExt(name, ".json"):
		return "json"
	case hasExt(name, ".pdf"):
		return "pdf"
	}
	return "other"
}

func hasExt(path string, exts ...string) bool {
	lower := strings.ToLower(path)
	for _, e := range exts {
		if strings.HasSuffix(lower, e) {
			return true
		}
	}
	return false
}

// FileName is the export name of a record: party records keep their
// 100-byte form, box records are 80 bytes.
func FileName(loc gba.Location, r *pk3.Record) string {
	national, _ := r.NationalDex()
	if loc.Party {
		return fmt.Sprintf("party%d_%03d.pk3", loc.Slot+1, national)
	}
	return fmt.Sprintf("box%02d_slot%02d_%03d.pk3", loc.Box+1, loc.Slot+1, national)
}

// Export re-encodes every record of save into dir and returns the manifest
// of the written files. img is only hashed.
func Export(save *gba.Save, img []byte, image, dir string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256", Items: []Item{}}
	m.Source = &Source{Image: image, Sha256: common.Sha256Hex(img), Slot: save.Selection.Active.Name()}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return m, err
	}
	for _, loc := range save.Records() {
		data, err := pk3.Encrypt(loc.Record)
		if err != nil {
			return m, fmt.Errorf("%s: %w", loc.Location, err)
		}
		name := FileName(loc.Location, loc.Record)
		if err := common.WriteFileAtomic(filepath.Join(dir, name), data); err != nil {
			return m, err
		}
		national, _ := loc.Record.NationalDex()
		m.Items = append(m.Items, Item{
			Path:     name,
			Size:     int64(len(data)),
			Sha256:   common.Sha256Hex(data),
			Type:     "pk3",
			Location: loc.Location.String(),
			National: national,
		})
	}
	common.Logf("exported %d records from %s into %s", len(m.Items), image, dir)
	return m, nil
}

// Verify re-hashes every item relative to dir.
func Verify(m Manifest, dir string) ([]Mismatch, error) {
	var out []Mismatch
	for _, it := range m.Items {
		hex, sz, err := common.Sha256OfFile(filepath.Join(dir, filepath.FromSlash(it.Path)))
		switch {
		case os.IsNotExist(err):
			out = append(out, Mismatch{Path: it.Path, Reason: "missing"})
		case err != nil:
			return out, err
		case sz != it.Size:
			out = append(out, Mismatch{Path: it.Path, Reason: fmt.Sprintf("size %d, want %d", sz, it.Size)})
		case hex != it.Sha256:
			out = append(out, Mismatch{Path: it.Path, Reason: "sha256 mismatch"})
		}
	}
	return out, nil
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return common.WriteFileAtomic(out, b)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// SignaturePath is the default JWS location for a manifest path.
func SignaturePath(manifestPath string) string {
	ext := filepath.Ext(manifestPath)
	return strings.TrimSuffix(manifestPath, ext) + ".jws"
}

// SaveSigned writes m to out and a detached RS256 signature over the exact
// manifest bytes to sigOut.
func SaveSigned(m Manifest, keyPEM []byte, out, sigOut string) (Manifest, error) {
	if sigOut == "" {
		sigOut = SignaturePath(out)
	}
	m.Signature = &Signature{Type: "jws-detached", SignatureFile: filepath.Base(sigOut)}
	kid, err := crypto.PrivateKeyID(keyPEM)
	if err != nil {
		return m, fmt.Errorf("manifest sign: %w", err)
	}
	m.Signature.KeyID = kid
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return m, err
	}
	jws, err := crypto.SignDetachedJWS(payload, keyPEM)
	if err != nil {
		return m, fmt.Errorf("manifest sign: %w", err)
	}
	jwsBytes, err := json.MarshalIndent(jws, "", "  ")
	if err != nil {
		return m, err
	}
	if err := common.WriteFileAtomic(out, payload); err != nil {
		return m, err
	}
	return m, common.WriteFileAtomic(sigOut, jwsBytes)
}

// VerifySignature checks the detached signature of the manifest file at
// path. keyPEM is a certificate or public key.
func VerifySignature(path, sigPath string, keyPEM []byte) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(sigPath)
	if err != nil {
		return err
	}
	var jws crypto.JWS
	if err := json.Unmarshal(raw, &jws); err != nil {
		return fmt.Errorf("parse jws: %w", err)
	}
	return crypto.VerifyDetachedJWS(payload, jws, keyPEM)
}
