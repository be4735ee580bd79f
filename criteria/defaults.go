package criteria

// Height7B is the publish height from which the 7B tier applies.
const Height7B uint64 = 2_786_061

var (
	AllowedTypesV1 = []string{
		"GPT2LMHeadModel",
		"MistralForCausalLM",
		"LlamaForCausalLM",
		"BloomForCausalLM",
		"FalconForCausalLM",
	}
	AllowedTypesV2 = []string{
		"MistralForCausalLM",
		"LlamaForCausalLM",
		"BloomForCausalLM",
		"FalconForCausalLM",
		"GemmaForCausalLM",
		"PhiForCausalLM",
	}
)

const (
	TokenizerDistilGPT2          = "distilgpt2"
	TokenizerGPT35Turbo16K       = "Xenova/gpt-3.5-turbo-16k"
	gib                    int64 = 1024 * 1024 * 1024
)

var (
	Criteria772M = Criteria{
		MaxSequenceLength: 1024,
		MaxBytes:          5 * gib,
		MaxParameters:     772_000_000,
		AllowedTypes:      AllowedTypesV1,
		Tokenizer:         TokenizerDistilGPT2,
	}
	Criteria7B = Criteria{
		MaxSequenceLength: 8192,
		MaxBytes:          15 * gib,
		MaxParameters:     6_900_000_000,
		AllowedTypes:      AllowedTypesV2,
		Tokenizer:         TokenizerGPT35Turbo16K,
		Optimized:         true,
	}
)

// Default returns the built-in criteria table.
func Default() Table {
	return Table{
		{Height: 0, Criteria: Criteria772M},
		{Height: Height7B, Criteria: Criteria7B},
	}
}
