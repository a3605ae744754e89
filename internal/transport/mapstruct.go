package transport

import "github.com/mitchellh/mapstructure"

// newWeakDecoder allows <remote extraAttr="30"/>-style string attributes to
// decode into typed int/bool struct fields (WeaklyTypedInput), the same
// relaxed-conversion idiom mapstructure ships for config-file values.
func newWeakDecoder(dest interface{}) (*mapstructure.Decoder, error) {
	return mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           dest,
	})
}
