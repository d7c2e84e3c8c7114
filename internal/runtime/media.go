package runtime

import (
	"path"
	"regexp"
	"strings"

	"github.com/vinculobrasil/flowbot/pkg/domain"
)

var mediaMarker = regexp.MustCompile(`^\[(audio|voice|ptt|image|imagem|photo|sticker|document|documento|file|payment_proof|comprovante|receipt)\]\s*`)

var (
	audioExt    = []string{".ogg", ".oga", ".opus", ".mp3", ".m4a", ".wav", ".aac", ".amr"}
	imageExt    = []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".heic"}
	documentExt = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".txt", ".odt"}

	paymentHints = []string{"comprovante", "receipt", "pix", "pagamento", "payment", "boleto_pago", "transferencia"}
)

// ClassifyMedia inspects an inbound payload and returns its media kind along
// with the media reference (the payload stripped of any marker).
//
// Payloads may carry an explicit marker such as "[audio] https://..." or be a
// bare URL/file name whose extension decides. Images and PDFs whose name
// hints at a payment are treated as payment proofs.
func ClassifyMedia(payload string) (domain.MediaKind, string) {
	p := strings.TrimSpace(payload)
	lower := strings.ToLower(p)

	if m := mediaMarker.FindStringSubmatch(lower); m != nil {
		ref := strings.TrimSpace(p[len(m[0]):])
		switch m[1] {
		case "audio", "voice", "ptt":
			return domain.MediaAudio, ref
		case "payment_proof", "comprovante", "receipt":
			return domain.MediaPaymentProof, ref
		case "document", "documento", "file":
			if hintsPayment(ref) {
				return domain.MediaPaymentProof, ref
			}
			return domain.MediaDocument, ref
		default:
			if hintsPayment(ref) {
				return domain.MediaPaymentProof, ref
			}
			return domain.MediaImage, ref
		}
	}

	if strings.ContainsAny(p, " \n\t") {
		return domain.MediaText, p
	}

	ext := strings.ToLower(path.Ext(stripQuery(lower)))
	switch {
	case ext == "":
		return domain.MediaText, p
	case contains(audioExt, ext):
		return domain.MediaAudio, p
	case contains(imageExt, ext), ext == ".pdf":
		if hintsPayment(lower) {
			return domain.MediaPaymentProof, p
		}
		if ext == ".pdf" {
			return domain.MediaDocument, p
		}
		return domain.MediaImage, p
	case contains(documentExt, ext):
		return domain.MediaDocument, p
	}
	return domain.MediaText, p
}

func hintsPayment(s string) bool {
	s = strings.ToLower(s)
	for _, h := range paymentHints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
