package resolver_test

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"code.cloudfoundry.org/lager/lagertest"
	"github.com/agily/omicron/pkg/authz"
	"github.com/agily/omicron/pkg/authz/repos/inmemory"
	. "github.com/agily/omicron/pkg/authz/resolver"
	"github.com/agily/omicron/pkg/authz/schema"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("DecisionCache", func() {
	var (
		registry *schema.Registry
		store    *inmemory.Store
		cache    *DecisionCache
		subject  *Resolver

		clk *fakeclock.FakeClock

		ctx        context.Context
		cancelFunc context.CancelFunc
		logger     *lagertest.TestLogger

		alice authz.Actor

		fleet        authz.Resource
		organization authz.Resource
		project      authz.Resource
	)

	BeforeEach(func() {
		var err error
		registry, err = schema.NewRegistry(schema.DefaultTypes()...)
		Expect(err).NotTo(HaveOccurred())

		clk = fakeclock.NewFakeClock(time.Now())
		cache = NewDecisionCache(clk, 30*time.Second)
		store = inmemory.NewStore(inmemory.WithInvalidator(cache))
		subject = NewResolver(registry, store, store, WithDecisionCache(cache))

		ctx, cancelFunc = context.WithTimeout(context.Background(), 1*time.Second)
		logger = lagertest.NewTestLogger("cache-test")

		alice = authz.Actor{ID: "alice", Namespace: "test"}

		fleet = authz.Resource{Type: schema.TypeFleet, ID: "F1"}
		organization = authz.Resource{Type: schema.TypeOrganization, ID: "O1"}
		project = authz.Resource{Type: schema.TypeProject, ID: "P1"}

		Expect(store.SetParent(ctx, logger, organization, schema.RelationParentFleet, fleet)).To(Succeed())
		Expect(store.SetParent(ctx, logger, project, schema.RelationParentOrganization, organization)).To(Succeed())
	})

	AfterEach(func() {
		cancelFunc()
	})

	It("serves a repeated query without consulting the stores again", func() {
		Expect(store.AssignRole(ctx, logger, alice, project, schema.RoleAdmin)).To(Succeed())

		allowed, err := subject.HasPermission(ctx, logger, alice, project, schema.PermModify)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())

		// A second resolver over failing stores but the shared cache
		// answers from the cached entry alone.
		failing := &failingStore{}
		cached := NewResolver(registry, failing, failing, WithDecisionCache(cache))

		allowed, err = cached.HasPermission(ctx, logger, alice, project, schema.PermModify)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())
	})

	It("drops the entry when the assignment on the instance changes", func() {
		Expect(store.AssignRole(ctx, logger, alice, project, schema.RoleAdmin)).To(Succeed())

		allowed, err := subject.HasPermission(ctx, logger, alice, project, schema.PermModify)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())

		Expect(store.UnassignRole(ctx, logger, alice, project, schema.RoleAdmin)).To(Succeed())

		allowed, err = subject.HasPermission(ctx, logger, alice, project, schema.PermModify)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeFalse())
	})

	It("drops the entry when an assignment changes on an ancestor", func() {
		Expect(store.AssignRole(ctx, logger, alice, fleet, schema.RoleAdmin)).To(Succeed())

		allowed, err := subject.HasPermission(ctx, logger, alice, project, schema.PermModify)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())

		Expect(store.UnassignRole(ctx, logger, alice, fleet, schema.RoleAdmin)).To(Succeed())

		allowed, err = subject.HasPermission(ctx, logger, alice, project, schema.PermModify)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeFalse())
	})

	It("expires entries after the TTL", func() {
		Expect(store.AssignRole(ctx, logger, alice, project, schema.RoleAdmin)).To(Succeed())

		allowed, err := subject.HasPermission(ctx, logger, alice, project, schema.PermModify)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())

		clk.Increment(31 * time.Second)

		_, hit := cache.Get(alice, project, schema.PermModify)
		Expect(hit).To(BeFalse())
	})

	It("caches denials as well as allowances", func() {
		allowed, err := subject.HasPermission(ctx, logger, alice, project, schema.PermModify)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeFalse())

		denied, hit := cache.Get(alice, project, schema.PermModify)
		Expect(hit).To(BeTrue())
		Expect(denied).To(BeFalse())
	})
})

var _ = Describe("cache wiring", func() {
	It("does not cache across distinct actors", func() {
		clk := fakeclock.NewFakeClock(time.Now())
		cache := NewDecisionCache(clk, time.Minute)

		cache.Put(
			authz.Actor{ID: "alice", Namespace: "test"},
			authz.Resource{Type: schema.TypeFleet, ID: "F1"},
			schema.PermModify,
			true,
			[]authz.Resource{{Type: schema.TypeFleet, ID: "F1"}},
		)

		_, hit := cache.Get(authz.Actor{ID: "bob", Namespace: "test"}, authz.Resource{Type: schema.TypeFleet, ID: "F1"}, schema.PermModify)
		Expect(hit).To(BeFalse())
	})
})
