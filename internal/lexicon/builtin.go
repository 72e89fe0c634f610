package lexicon

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/opensource-health/triage/internal/domain"
)

// BuiltinRules returns the default disease table. Keyword sets are
// pairwise disjoint so a single-disease description yields a single match.
func BuiltinRules() []domain.DiseaseRule {
	return []domain.DiseaseRule{
		{
			Name:             "flu",
			Keywords:         []string{"demam", "batuk", "pilek", "bersin", "hidung tersumbat"},
			Symptoms:         []string{"Demam", "Batuk", "Pilek", "Bersin-bersin", "Hidung tersumbat"},
			MedicationAdvice: "Paracetamol untuk menurunkan demam, obat batuk sesuai gejala, perbanyak minum air putih",
			DoctorAdvice:     "Istirahat yang cukup. Periksakan diri ke dokter umum jika demam tidak turun setelah 3 hari",
		},
		{
			Name:             "diare",
			Keywords:         []string{"diare", "mencret", "buang air besar cair", "bab cair"},
			Symptoms:         []string{"Buang air besar cair lebih dari 3 kali sehari", "Perut mulas", "Badan lemas"},
			MedicationAdvice: "Oralit untuk mencegah dehidrasi dan tablet zinc selama 10 hari",
			DoctorAdvice:     "Segera ke dokter jika terdapat darah pada tinja atau tanda dehidrasi berat",
		},
		{
			Name:             "hipertensi",
			Keywords:         []string{"hipertensi", "darah tinggi", "sakit kepala belakang", "tengkuk"},
			Symptoms:         []string{"Sakit kepala bagian belakang", "Tengkuk terasa berat", "Pusing", "Penglihatan kabur"},
			MedicationAdvice: "Kurangi konsumsi garam, minum obat antihipertensi sesuai resep dokter",
			DoctorAdvice:     "Kontrol tekanan darah secara rutin ke dokter penyakit dalam",
		},
		{
			Name:             "ispa",
			Keywords:         []string{"ispa", "sesak napas", "sakit tenggorokan", "nyeri tenggorokan", "napas berbunyi"},
			Symptoms:         []string{"Sesak napas", "Nyeri tenggorokan", "Napas berbunyi", "Nyeri dada saat bernapas"},
			MedicationAdvice: "Minum air hangat, obat pereda nyeri tenggorokan, hindari asap rokok",
			DoctorAdvice:     "Periksakan ke dokter paru jika sesak napas memberat atau berlangsung lebih dari seminggu",
		},
		{
			Name:             "maag",
			Keywords:         []string{"maag", "nyeri ulu hati", "perut perih", "mual", "kembung"},
			Symptoms:         []string{"Nyeri ulu hati", "Perut perih", "Mual", "Perut kembung"},
			MedicationAdvice: "Antasida sebelum makan, makan teratur dalam porsi kecil, hindari kopi dan makanan pedas",
			DoctorAdvice:     "Konsultasikan ke dokter jika muntah darah atau nyeri tidak membaik",
		},
		{
			Name:             "cacar",
			Keywords:         []string{"cacar", "bintil berair", "ruam gatal"},
			Symptoms:         []string{"Bintil berisi cairan", "Ruam gatal", "Demam ringan"},
			MedicationAdvice: "Bedak salisil untuk mengurangi gatal, asiklovir sesuai resep dokter",
			DoctorAdvice:     "Hindari kontak dengan ibu hamil dan bayi, periksakan ke dokter kulit",
		},
	}
}

// Default compiles the built-in rules.
func Default(mode domain.MatchMode) (*Lexicon, error) {
	return New(BuiltinRules(), mode)
}

// File is the on-disk lexicon format.
type File struct {
	Rules []domain.DiseaseRule `json:"rules"`
}

// Parse reads a JSON lexicon.
func Parse(r io.Reader, mode domain.MatchMode) (*Lexicon, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: failed to decode lexicon: %v", domain.ErrInvalidInput, err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("%w: lexicon has no rules", domain.ErrInvalidInput)
	}
	return New(f.Rules, mode)
}

// LoadFile reads a JSON lexicon from path.
func LoadFile(path string, mode domain.MatchMode) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lexicon: %w", err)
	}
	defer f.Close()

	return Parse(f, mode)
}

// Load returns the lexicon configured by cfg: the file at cfg.Path, or
// the built-in rules when no path is set.
func Load(cfg domain.LexiconConfig) (*Lexicon, error) {
	if cfg.Path == "" {
		return Default(cfg.Mode)
	}
	return LoadFile(cfg.Path, cfg.Mode)
}
