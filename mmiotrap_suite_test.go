package mmiotrap_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestMmiotrap(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "mmiotrap")
}
