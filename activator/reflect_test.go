package activator_test

import (
	"errors"
	"reflect"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/dig"

	"github.com/junioryono/godi/v5"
	"github.com/junioryono/godi/v5/activator"
)

type handlerParams struct {
	dig.In

	Logger   Logger
	DB       *Database `optional:"true"`
	Hooks    []Hook    `multi:"true"`
	Extra    []Hook    `multi:"true" optional:"true"`
	Skipped  *User     `inject:"-"`
	internal int
}

type handler struct {
	params handlerParams
}

func newHandler(p handlerParams) *handler { return &handler{params: p} }

var _ = Describe("Reflect", func() {
	var strategy *activator.Reflect

	BeforeEach(func() {
		strategy = activator.NewReflect()
	})

	build := func(configure func(c godi.Collection)) *godi.Scope {
		c := godi.NewCollection(strategy)
		configure(c)

		reg, err := c.Build()
		Expect(err).ShouldNot(HaveOccurred())
		DeferCleanup(reg.Close)

		scope, err := reg.CreateScope()
		Expect(err).ShouldNot(HaveOccurred())
		DeferCleanup(scope.Close)

		return scope
	}

	Describe("Describe", func() {
		It("should use the first return value as the service type", func() {
			recipe, err := strategy.Describe(newUserService)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(recipe.ServiceType).To(Equal(reflect.TypeFor[*UserService]()))
			Expect(recipe.Factory).NotTo(BeNil())
			Expect(recipe.Instance).To(BeNil())
		})

		It("should treat a plain value as an instance", func() {
			db := &Database{DSN: "static"}
			recipe, err := strategy.Describe(db)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(recipe.ServiceType).To(Equal(reflect.TypeFor[*Database]()))
			Expect(recipe.Factory).To(BeNil())
			Expect(recipe.Instance).To(BeIdenticalTo(db))
		})

		It("should record required parameters as dependencies", func() {
			recipe, err := strategy.Describe(newUserService)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(recipe.Dependencies).To(Equal([]reflect.Type{
				reflect.TypeFor[*Database](),
				reflect.TypeFor[Logger](),
			}))

			recipe, err = strategy.Describe(newHandler)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(recipe.Dependencies).To(Equal([]reflect.Type{reflect.TypeFor[Logger]()}))
		})

		It("should leave the resolver and scope out of dependencies", func() {
			recipe, err := strategy.Describe(func(godi.Resolver, *godi.Scope) *User { return &User{} })

			Expect(err).ShouldNot(HaveOccurred())
			Expect(recipe.Dependencies).To(BeEmpty())
		})

		DescribeTable("should reject unsupported constructors",
			func(constructor any, expected error) {
				_, err := strategy.Describe(constructor)
				Expect(err).Should(MatchError(expected))
			},
			Entry("nil", nil, activator.ErrConstructorNil),
			Entry("typed nil", (func() *Database)(nil), activator.ErrConstructorNil),
			Entry("no returns", func() {}, activator.ErrNoReturn),
			Entry("only error", func() error { return nil }, activator.ErrNoReturn),
			Entry("second value not error", func() (*Database, *User) { return nil, nil }, activator.ErrTooManyReturns),
			Entry("three returns", func() (*Database, *User, error) { return nil, nil, nil }, activator.ErrTooManyReturns),
			Entry("variadic", func(...Hook) *Database { return nil }, activator.ErrVariadic),
			Entry("result object", func() struct{ dig.Out } { return struct{ dig.Out }{} }, activator.ErrResultObject),
		)
	})

	It("should resolve positional parameters through the resolver", func() {
		scope := build(func(c godi.Collection) {
			Expect(c.AddSingleton(newDatabase)).To(Succeed())
			Expect(c.AddSingleton(newLogger)).To(Succeed())
			Expect(c.AddScoped(newUserService)).To(Succeed())
		})

		svc, err := godi.Resolve[*UserService](scope)

		Expect(err).ShouldNot(HaveOccurred())
		Expect(svc.DB.DSN).To(Equal("memory"))
		Expect(svc.Logger).NotTo(BeNil())
	})

	It("should pass constructor errors to the engine", func() {
		scope := build(func(c godi.Collection) {
			Expect(c.AddSingleton(newFailingDatabase)).To(Succeed())
		})

		_, err := godi.Resolve[*Database](scope)

		Expect(err).Should(MatchError(errDatabaseDown))
		var constructionErr godi.ConstructionError
		Expect(errors.As(err, &constructionErr)).To(BeTrue())
	})

	It("should hand the resolver and scope to constructors asking for them", func() {
		type lazy struct {
			r     godi.Resolver
			scope *godi.Scope
		}

		scope := build(func(c godi.Collection) {
			Expect(c.AddScoped(func(r godi.Resolver, s *godi.Scope) *lazy {
				return &lazy{r: r, scope: s}
			})).To(Succeed())
		})

		l, err := godi.Resolve[*lazy](scope)

		Expect(err).ShouldNot(HaveOccurred())
		Expect(l.r).NotTo(BeNil())
		Expect(l.scope).To(BeIdenticalTo(scope))
	})

	Describe("parameter objects", func() {
		It("should fill fields from their tags", func() {
			scope := build(func(c godi.Collection) {
				Expect(c.AddSingleton(newLogger)).To(Succeed())
				Expect(c.AddInstance(namedHook("first"), godi.As(new(Hook)))).To(Succeed())
				Expect(c.AddInstance(namedHook("second"), godi.As(new(Hook)))).To(Succeed())
				Expect(c.AddTransient(newHandler)).To(Succeed())
			})

			h, err := godi.Resolve[*handler](scope)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(h.params.Logger).NotTo(BeNil())
			Expect(h.params.DB).To(BeNil())
			Expect(h.params.Hooks).To(HaveLen(2))
			Expect(h.params.Hooks[0].Name()).To(Equal("first"))
			Expect(h.params.Hooks[1].Name()).To(Equal("second"))
			Expect(h.params.Extra).To(HaveLen(2))
			Expect(h.params.Skipped).To(BeNil())
		})

		It("should fail when a required field is missing", func() {
			scope := build(func(c godi.Collection) {
				Expect(c.AddTransient(newHandler)).To(Succeed())
			})

			_, err := godi.Resolve[*handler](scope)

			Expect(godi.IsNotFound(err)).To(BeTrue())
		})

		It("should not swallow a missing dependency of an optional field", func() {
			scope := build(func(c godi.Collection) {
				Expect(c.AddSingleton(newLogger)).To(Succeed())
				Expect(c.AddInstance(namedHook("only"), godi.As(new(Hook)))).To(Succeed())
				Expect(c.AddSingleton(func(u *User) *Database { return &Database{DSN: u.Name} })).To(Succeed())
				Expect(c.AddTransient(newHandler)).To(Succeed())
			})

			_, err := godi.Resolve[*handler](scope)

			var re godi.ResolutionError
			Expect(errors.As(err, &re)).To(BeTrue())
			Expect(re.ServiceType).To(Equal(reflect.TypeFor[*User]()))
		})
	})

	It("should report cycles between constructors", func() {
		type A struct{}
		type B struct{}

		scope := build(func(c godi.Collection) {
			Expect(c.AddSingleton(func(*B) *A { return &A{} })).To(Succeed())
			Expect(c.AddSingleton(func(*A) *B { return &B{} })).To(Succeed())
		})

		_, err := godi.Resolve[*A](scope)

		Expect(godi.IsCircularDependency(err)).To(BeTrue())
		var cycle godi.CircularDependencyError
		Expect(errors.As(err, &cycle)).To(BeTrue())
		Expect(cycle.Chain).To(HaveLen(3))
	})

	Describe("dependency validation", func() {
		It("should reject a cycle when the collection is built", func() {
			type A struct{}
			type B struct{}

			c := godi.NewCollection(strategy)
			Expect(c.AddSingleton(func(*B) *A { return &A{} })).To(Succeed())
			Expect(c.AddSingleton(func(*A) *B { return &B{} })).To(Succeed())

			reg, err := c.Build(godi.WithDependencyValidation(true))

			Expect(reg).To(BeNil())
			Expect(godi.IsCircularDependency(err)).To(BeTrue())
		})

		It("should reject a missing constructor parameter", func() {
			c := godi.NewCollection(strategy)
			Expect(c.AddSingleton(newLogger)).To(Succeed())
			Expect(c.AddScoped(newUserService)).To(Succeed())

			_, err := c.Build(godi.WithDependencyValidation(true))

			var re godi.ResolutionError
			Expect(errors.As(err, &re)).To(BeTrue())
			Expect(re.ServiceType).To(Equal(reflect.TypeFor[*Database]()))
		})

		It("should reject a singleton capturing a scoped service", func() {
			c := godi.NewCollection(strategy)
			Expect(c.AddScoped(newDatabase)).To(Succeed())
			Expect(c.AddSingleton(newLogger)).To(Succeed())
			Expect(c.AddSingleton(newUserService)).To(Succeed())

			_, err := c.Build(godi.WithDependencyValidation(true))

			Expect(err).Should(MatchError(godi.ErrLifetimeConflict))
		})

		It("should accept a complete graph", func() {
			c := godi.NewCollection(strategy)
			Expect(c.AddSingleton(newDatabase)).To(Succeed())
			Expect(c.AddSingleton(newLogger)).To(Succeed())
			Expect(c.AddScoped(newUserService)).To(Succeed())

			reg, err := c.Build(godi.WithDependencyValidation(true))

			Expect(err).ShouldNot(HaveOccurred())
			Expect(reg.Close()).To(Succeed())
		})
	})

	It("should return the same factory for the same constructor", func() {
		f1, err := strategy.Factory(newDatabase)
		Expect(err).ShouldNot(HaveOccurred())

		f2, err := strategy.Factory(newDatabase)
		Expect(err).ShouldNot(HaveOccurred())

		Expect(f1).NotTo(BeNil())
		Expect(f2).NotTo(BeNil())
	})
})
