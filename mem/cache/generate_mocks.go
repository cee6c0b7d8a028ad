//go:generate mockgen -destination=mock_transport_test.go -package=cache_test github.com/sarchlab/gpumemsim/mem/cache Transport

package cache
