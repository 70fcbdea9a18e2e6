package genai

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fenced-block extraction is hand-rolled on regexp: no markdown parser in
// the ecosystem exposes fence language tags in a usable way for this.

var (
	pythonFenceRe = regexp.MustCompile("(?s)```python\\s*\\n(.*?)```")
	yamlFenceRe   = regexp.MustCompile("(?s)```yaml\\s*\\n(.*?)```")
)

// ExtractCode returns the first fenced python block per requested tag. With
// no tags, the whole text is searched once and a single snippet is returned.
func ExtractCode(raw string, blockTags ...string) ([]string, error) {
	sections, err := narrow(raw, blockTags)
	if err != nil {
		return nil, err
	}

	snippets := make([]string, 0, len(sections))
	for _, section := range sections {
		m := pythonFenceRe.FindStringSubmatch(section)
		if m == nil {
			return nil, &GenError{Reason: "no fenced python block in response", Raw: raw}
		}
		snippets = append(snippets, strings.TrimRight(m[1], "\n")+"\n")
	}

	return snippets, nil
}

// ExtractLists returns the parsed string sequence of the first fenced yaml
// block per requested tag
func ExtractLists(raw string, blockTags ...string) ([][]string, error) {
	sections, err := narrow(raw, blockTags)
	if err != nil {
		return nil, err
	}

	lists := make([][]string, 0, len(sections))
	for _, section := range sections {
		m := yamlFenceRe.FindStringSubmatch(section)
		if m == nil {
			return nil, &GenError{Reason: "no fenced yaml block in response", Raw: raw}
		}

		var parsed []string
		if err := yaml.Unmarshal([]byte(m[1]), &parsed); err != nil {
			return nil, &GenError{Reason: fmt.Sprintf("yaml block is not a sequence of strings: %v", err), Raw: raw}
		}
		if parsed == nil {
			return nil, &GenError{Reason: "yaml block is empty", Raw: raw}
		}
		lists = append(lists, parsed)
	}

	return lists, nil
}

// narrow slices raw into the content of each <Tag>...</Tag> section, or
// returns raw whole when no tags are requested
func narrow(raw string, blockTags []string) ([]string, error) {
	if len(blockTags) == 0 {
		return []string{raw}, nil
	}

	sections := make([]string, 0, len(blockTags))
	for _, tag := range blockTags {
		re, err := regexp.Compile(fmt.Sprintf(`(?s)<%s>(.*?)</%s>`, regexp.QuoteMeta(tag), regexp.QuoteMeta(tag)))
		if err != nil {
			return nil, fmt.Errorf("invalid block tag %q: %w", tag, err)
		}
		m := re.FindStringSubmatch(raw)
		if m == nil {
			return nil, &GenError{Reason: fmt.Sprintf("tag <%s> not found in response", tag), Raw: raw}
		}
		sections = append(sections, m[1])
	}

	return sections, nil
}
