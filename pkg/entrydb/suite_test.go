package entrydb_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestEntryDB(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "entrydb suite")
}
