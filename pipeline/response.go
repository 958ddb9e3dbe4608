package pipeline

import (
	"fmt"
	"net/http"
	"strings"
)

// validateResponse applies the two transport-contract checks, in order,
// to every non-cached result before decoding: status code against the
// descriptor's accepted set, then content type against the expected
// value. Content-type validation is skipped for empty bodies and when
// the descriptor suppresses the expectation.
func validateResponse(d *Descriptor, resp *http.Response, body []byte) error {
	if resp == nil {
		return ErrNonHTTPResponse
	}

	if !d.accepts(resp.StatusCode) {
		if d.serverErrMapper != nil {
			return d.serverErrMapper(resp.StatusCode, body)
		}

		return &ServerFailureError{
			StatusCode: resp.StatusCode,
			Body:       clipBody(body),
			Err:        ErrServerFailure,
		}
	}

	if !d.checkCT || len(body) == 0 {
		return nil
	}

	ct := resp.Header.Get("Content-Type")
	if !contentTypeMatches(ct, d.expectedCT) {
		return &ContentTypeError{
			Expected: d.expectedCT,
			Got:      ct,
			Err:      ErrWrongContentType,
		}
	}

	return nil
}

// contentTypeMatches accepts an exact match or the expected value
// followed by parameters such as a charset qualifier.
func contentTypeMatches(got, want string) bool {
	got = strings.TrimSpace(got)
	if got == want {
		return true
	}

	return strings.HasPrefix(got, want+";")
}

// decodePayload selects the bytes handed to the codec. An absent body
// with declared zero content length decodes as an empty payload; an
// absent body with unknown or non-zero content length is a parse
// failure, since content was expected.
func decodePayload(resp *http.Response, body []byte) ([]byte, error) {
	if len(body) > 0 {
		return body, nil
	}

	if resp.ContentLength == 0 {
		return nil, nil
	}

	return nil, &ParseError{
		Detail: fmt.Sprintf("empty body with content length %d", resp.ContentLength),
		Err:    ErrParse,
	}
}

func clipBody(body []byte) string {
	if len(body) > maxLoggedBodySize {
		body = body[:maxLoggedBodySize]
	}

	return string(body)
}
