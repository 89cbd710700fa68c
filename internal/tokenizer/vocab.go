package tokenizer

// Symbol groups in model order. The pad symbol takes code 0, which also
// serves as the start and end sentinel.
const (
	padSymbol   = "$"
	punctuation = ";:,.!?¡¿—…\"«»“” "
	latin       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	ipa         = "ɑɐɒæɓʙβɔɕçɗɖðʤəɘɚɛɜɝɞɟʄɡɠɢʛɦɧħɥʜɨɪʝɭɬɫɮʟɱɯɰŋɳɲɴøɵɸθœɶʘɹɺɾɻʀʁɽʂʃʈʧʉʊʋⱱʌɣɤʍχʎʏʑʐʒʔʡʕʢǀǁǂǃˈˌːˑʼʴʰʱʲʷˠˤ˞↓↑→↗↘'̩'ᵻ"
)

// Sentinel marks the start and end of every token sequence.
const Sentinel int64 = 0

var vocabulary = buildVocabulary()

func buildVocabulary() map[rune]int64 {
	vocab := make(map[rune]int64)
	code := int64(0)
	for _, group := range []string{padSymbol, punctuation, latin, ipa} {
		for _, r := range group {
			// A repeated symbol keeps its last position.
			vocab[r] = code
			code++
		}
	}
	return vocab
}

// Code returns the vocabulary code for r.
func Code(r rune) (int64, bool) {
	code, ok := vocabulary[r]
	return code, ok
}

// Size returns the number of symbol positions in the vocabulary.
func Size() int {
	n := 0
	for _, group := range []string{padSymbol, punctuation, latin, ipa} {
		for range group {
			n++
		}
	}
	return n
}
