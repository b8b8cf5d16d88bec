package codec

type codecError string

func (e codecError) Error() string {
	return string(e)
}

// ErrEncoding is wrapped by every failure to encode a value for the EVM.
const ErrEncoding codecError = "encoding error"
