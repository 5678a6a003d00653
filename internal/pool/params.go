package pool

import (
	"fmt"
	"strings"
)

// RewriteNamedParameters rewrites @name tokens in text into positional
// $1, $2, ... placeholders and returns the matching argument slice in
// first-occurrence order (spec §4.7). A query with no named-parameter
// tokens is returned unchanged; passing params alongside such a query is
// an error, since it almost always means the caller built the wrong
// query string.
func RewriteNamedParameters(opts *Options, text string, params map[string]any) (string, []any, error) {
	matches := opts.NamedParameterFindRegExp.FindAllString(text, -1)
	if len(matches) == 0 {
		if len(params) > 0 {
			return "", nil, newError(ErrCodeNoNamedParameters, "query contains no named parameters but values were supplied")
		}
		return text, nil, nil
	}

	order := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, token := range matches {
		if !seen[token] {
			seen[token] = true
			order = append(order, token)
		}
	}

	names := make([]string, len(order))
	for i, token := range order {
		names[i] = opts.GetNamedParameterName(token)
	}

	var missing []string
	for _, name := range names {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", nil, newError(ErrCodeMissingQueryParameter, fmt.Sprintf("Missing query parameter(s): %s", strings.Join(missing, ", ")))
	}

	args := make([]any, 0, len(order))
	rewritten := text
	for i, token := range order {
		args = append(args, params[names[i]])
		rewritten = opts.GetNamedParameterReplaceRegExp(token).ReplaceAllLiteralString(rewritten, fmt.Sprintf("$%d", i+1))
	}
	return rewritten, args, nil
}
