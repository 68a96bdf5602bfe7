package resolver_test

import (
	"context"
	"errors"
	"time"

	"code.cloudfoundry.org/lager"
	"code.cloudfoundry.org/lager/lagertest"
	"github.com/agily/omicron/pkg/authz"
	"github.com/agily/omicron/pkg/authz/repos"
	"github.com/agily/omicron/pkg/authz/repos/inmemory"
	. "github.com/agily/omicron/pkg/authz/resolver"
	"github.com/agily/omicron/pkg/authz/schema"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Resolver", func() {
	var (
		registry *schema.Registry
		store    *inmemory.Store
		subject  *Resolver

		ctx        context.Context
		cancelFunc context.CancelFunc
		logger     *lagertest.TestLogger

		alice authz.Actor
		bob   authz.Actor

		fleet        authz.Resource
		organization authz.Resource
		project      authz.Resource
	)

	BeforeEach(func() {
		var err error
		registry, err = schema.NewRegistry(schema.DefaultTypes()...)
		Expect(err).NotTo(HaveOccurred())

		store = inmemory.NewStore()
		subject = NewResolver(registry, store, store)

		ctx, cancelFunc = context.WithTimeout(context.Background(), 1*time.Second)
		logger = lagertest.NewTestLogger("resolver-test")

		alice = authz.Actor{ID: "alice", Namespace: "test"}
		bob = authz.Actor{ID: "bob", Namespace: "test"}

		fleet = authz.Resource{Type: schema.TypeFleet, ID: "F1"}
		organization = authz.Resource{Type: schema.TypeOrganization, ID: "O1"}
		project = authz.Resource{Type: schema.TypeProject, ID: "P1"}

		Expect(store.SetParent(ctx, logger, organization, schema.RelationParentFleet, fleet)).To(Succeed())
		Expect(store.SetParent(ctx, logger, project, schema.RelationParentOrganization, organization)).To(Succeed())
	})

	AfterEach(func() {
		cancelFunc()
	})

	Describe("#HasPermission", func() {
		It("allows a directly granted role that implies the permission", func() {
			Expect(store.AssignRole(ctx, logger, alice, project, schema.RoleAdmin)).To(Succeed())

			allowed, err := subject.HasPermission(ctx, logger, alice, project, schema.PermModify)

			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
		})

		It("expands role implications before deciding", func() {
			Expect(store.AssignRole(ctx, logger, alice, project, schema.RoleAdmin)).To(Succeed())

			// admin implies collaborator implies viewer
			allowed, err := subject.HasPermission(ctx, logger, alice, project, schema.PermRead)

			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
		})

		It("denies an actor with no grants anywhere", func() {
			allowed, err := subject.HasPermission(ctx, logger, bob, project, schema.PermModify)

			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("propagates fleet admin down to a nested project", func() {
			Expect(store.AssignRole(ctx, logger, alice, fleet, schema.RoleAdmin)).To(Succeed())

			allowed, err := subject.HasPermission(ctx, logger, alice, project, schema.PermModify)

			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
		})

		It("does not propagate viewer across the hierarchy", func() {
			Expect(store.AssignRole(ctx, logger, alice, organization, schema.RoleViewer)).To(Succeed())

			allowed, err := subject.HasPermission(ctx, logger, alice, project, schema.PermModify)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())

			allowed, err = subject.HasPermission(ctx, logger, alice, project, schema.PermRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("denies when a required parent pointer is absent", func() {
			orphan := authz.Resource{Type: schema.TypeProject, ID: "P-orphan"}
			Expect(store.AssignRole(ctx, logger, alice, fleet, schema.RoleAdmin)).To(Succeed())

			allowed, err := subject.HasPermission(ctx, logger, alice, orphan, schema.PermModify)

			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("reflects a revocation on the very next call", func() {
			Expect(store.AssignRole(ctx, logger, alice, project, schema.RoleAdmin)).To(Succeed())

			allowed, err := subject.HasPermission(ctx, logger, alice, project, schema.PermModify)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())

			Expect(store.UnassignRole(ctx, logger, alice, project, schema.RoleAdmin)).To(Succeed())

			allowed, err = subject.HasPermission(ctx, logger, alice, project, schema.PermModify)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("denies the anonymous actor unless the permission is anonymous-accessible", func() {
			allowed, err := subject.HasPermission(ctx, logger, authz.Anonymous, project, schema.PermRead)

			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("allows the anonymous actor on a declared anonymous permission", func() {
			openRegistry, err := schema.NewRegistry(schema.Type{
				Name:        "status",
				Permissions: []schema.Permission{{Name: "read", AllowAnonymous: true}},
			})
			Expect(err).NotTo(HaveOccurred())

			openResolver := NewResolver(openRegistry, store, store)

			allowed, err := openResolver.HasPermission(ctx, logger, authz.Anonymous, authz.Resource{Type: "status", ID: "s"}, "read")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
		})

		It("returns a SchemaError for an unregistered resource type", func() {
			_, err := subject.HasPermission(ctx, logger, alice, authz.Resource{Type: "gizmo", ID: "g"}, schema.PermRead)

			Expect(err).To(BeAssignableToTypeOf(authz.SchemaError{}))
		})

		It("ignores a stale grant naming a role the schema does not declare", func() {
			Expect(store.AssignRole(ctx, logger, alice, project, "superuser")).To(Succeed())

			allowed, err := subject.HasPermission(ctx, logger, alice, project, schema.PermModify)

			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		Describe("the bootstrap identity", func() {
			var (
				bootstrap authz.Actor
				database  authz.Resource
			)

			BeforeEach(func() {
				bootstrap = authz.Actor{ID: "bootstrap", Namespace: "system"}
				database = authz.Resource{Type: schema.TypeDatabase, ID: "public"}

				subject = NewResolver(registry, store, store,
					WithBootstrapIdentity(bootstrap, authz.RoleGrant{
						Resource: database,
						Role:     schema.RoleDBInit,
					}),
				)
			})

			It("holds both database permissions without any store lookup", func() {
				failing := &failingStore{}
				isolated := NewResolver(registry, failing, failing,
					WithBootstrapIdentity(bootstrap, authz.RoleGrant{
						Resource: database,
						Role:     schema.RoleDBInit,
					}),
				)

				allowed, err := isolated.HasPermission(ctx, logger, bootstrap, database, schema.PermDBQuery)
				Expect(err).NotTo(HaveOccurred())
				Expect(allowed).To(BeTrue())

				allowed, err = isolated.HasPermission(ctx, logger, bootstrap, database, schema.PermDBModify)
				Expect(err).NotTo(HaveOccurred())
				Expect(allowed).To(BeTrue())
			})

			It("denies ordinary actors on the database", func() {
				for _, permission := range []string{schema.PermDBQuery, schema.PermDBModify} {
					allowed, err := subject.HasPermission(ctx, logger, bob, database, permission)
					Expect(err).NotTo(HaveOccurred())
					Expect(allowed).To(BeFalse())
				}
			})

			It("grants the bootstrap identity nothing outside its singleton resource", func() {
				allowed, err := subject.HasPermission(ctx, logger, bootstrap, project, schema.PermModify)

				Expect(err).NotTo(HaveOccurred())
				Expect(allowed).To(BeFalse())
			})
		})

		Describe("fail-closed store behavior", func() {
			It("surfaces an assignment store failure as StoreUnavailable, never Allow", func() {
				failing := &failingStore{}
				broken := NewResolver(registry, failing, store)

				allowed, err := broken.HasPermission(ctx, logger, alice, project, schema.PermModify)

				Expect(err).To(BeAssignableToTypeOf(authz.StoreUnavailableError{}))
				Expect(allowed).To(BeFalse())
			})

			It("surfaces a relation store failure as StoreUnavailable, never Allow", func() {
				failing := &failingStore{}
				broken := NewResolver(registry, store, failing)

				allowed, err := broken.HasPermission(ctx, logger, alice, project, schema.PermModify)

				Expect(err).To(BeAssignableToTypeOf(authz.StoreUnavailableError{}))
				Expect(allowed).To(BeFalse())
			})

			It("denies on a cancelled context instead of hanging", func() {
				cancelledCtx, cancel := context.WithCancel(context.Background())
				cancel()

				allowed, err := subject.HasPermission(cancelledCtx, logger, alice, project, schema.PermModify)

				Expect(err).To(HaveOccurred())
				Expect(allowed).To(BeFalse())
			})
		})

		Describe("a cyclic relation configuration", func() {
			It("terminates and denies rather than looping", func() {
				cyclic := &cyclicRelationStore{resource: project}
				guarded := NewResolver(registry, store, cyclic)

				allowed, err := guarded.HasPermission(ctx, logger, alice, project, schema.PermModify)

				Expect(err).NotTo(HaveOccurred())
				Expect(allowed).To(BeFalse())
			})
		})
	})
})

type failingStore struct{}

func (failingStore) RolesOf(context.Context, lager.Logger, repos.RolesOfQuery) ([]string, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) ParentOf(context.Context, lager.Logger, repos.ParentQuery) (authz.Resource, bool, error) {
	return authz.Resource{}, false, errors.New("connection refused")
}

// cyclicRelationStore claims every instance is its own ancestor, simulating
// corrupted upstream relation data.
type cyclicRelationStore struct {
	resource authz.Resource
}

func (s *cyclicRelationStore) ParentOf(_ context.Context, _ lager.Logger, query repos.ParentQuery) (authz.Resource, bool, error) {
	return s.resource, true, nil
}
