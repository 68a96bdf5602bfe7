package identity_test

import (
	"net/http"

	"github.com/agily/omicron/pkg/authz"
	. "github.com/agily/omicron/pkg/authz/identity"
	oidc "github.com/coreos/go-oidc"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type nilProvider struct{}

func (nilProvider) Verifier(config *oidc.Config) *oidc.IDTokenVerifier {
	return nil
}

var _ = Describe("Verifier", func() {
	var subject *Verifier

	BeforeEach(func() {
		subject = NewVerifier(nilProvider{}, "omicron")
	})

	Describe("#ActorFromRequest", func() {
		It("yields the anonymous actor when no Authorization header is present", func() {
			req, err := http.NewRequest(http.MethodGet, "/", nil)
			Expect(err).NotTo(HaveOccurred())

			actor, err := subject.ActorFromRequest(req)

			Expect(err).NotTo(HaveOccurred())
			Expect(actor).To(Equal(authz.Anonymous))
			Expect(actor.Authenticated()).To(BeFalse())
		})

		It("yields the anonymous actor for an empty bearer token", func() {
			req, err := http.NewRequest(http.MethodGet, "/", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Bearer ")

			actor, err := subject.ActorFromRequest(req)

			Expect(err).NotTo(HaveOccurred())
			Expect(actor).To(Equal(authz.Anonymous))
		})
	})
})
