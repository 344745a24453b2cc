package savitzkygolay
type Filter struct{}
func NewFilter(window, derivative, order int) (*Filter, error) { return &Filter{}, nil }
func (f *Filter) Process(ys, xs []float64) ([]float64, error) { return append([]float64(nil), ys...), nil }
