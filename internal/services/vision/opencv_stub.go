//go:build noopencv

package vision

func newOpenCV() (Backend, error) {
	return nil, ErrBackendUnavailable
}
