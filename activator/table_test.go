package activator_test

import (
	"errors"
	"reflect"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/junioryono/godi/v5"
	"github.com/junioryono/godi/v5/activator"
)

var _ = Describe("Table", func() {
	var table *activator.Table

	BeforeEach(func() {
		table = activator.NewTable()
	})

	Describe("as an Activator", func() {
		It("should report unknown closings", func() {
			_, err := table.TypeArguments(reflect.TypeFor[Store[User]]())
			Expect(err).Should(MatchError(activator.ErrUnknownClosing))

			_, err = table.Decorate(reflect.TypeFor[*Cached[Store[User]]](), nil)
			Expect(err).Should(MatchError(activator.ErrUnknownClosing))

			_, err = table.Close(reflect.TypeFor[Store[User]](), godi.DefinitionFor[*memoryStore[any]]())
			Expect(err).Should(MatchError(activator.ErrUnknownClosing))
		})

		It("should record the wrapped type as the decorator's type argument", func() {
			activator.Decorator(table, func(r godi.Resolver, inner Store[User]) (*Cached[Store[User]], error) {
				return &Cached[Store[User]]{Inner: inner}, nil
			})

			args, err := table.TypeArguments(reflect.TypeFor[*Cached[Store[User]]]())

			Expect(err).ShouldNot(HaveOccurred())
			Expect(args).To(Equal([]reflect.Type{reflect.TypeFor[Store[User]]()}))
			Expect(table.Len()).To(Equal(1))
		})

		It("should keep explicit type arguments", func() {
			closed := reflect.TypeFor[*Cached[Store[User]]]()
			table.SetTypeArguments(closed, reflect.TypeFor[User](), reflect.TypeFor[Store[User]]())
			activator.Decorator(table, func(r godi.Resolver, inner Store[User]) (*Cached[Store[User]], error) {
				return &Cached[Store[User]]{Inner: inner}, nil
			})

			args, err := table.TypeArguments(closed)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(args).To(HaveLen(2))
		})

		It("should reject a closing used for the wrong binding kind", func() {
			Expect(activator.Closing[Store[User]](table, func(godi.Resolver) (*memoryStore[User], error) {
				return &memoryStore[User]{}, nil
			})).To(Succeed())

			_, err := table.Decorate(reflect.TypeFor[Store[User]](), nil)
			Expect(err).Should(MatchError(activator.ErrNotDecorator))

			_, err = table.Close(reflect.TypeFor[Store[User]](), godi.DefinitionFor[Cached[any]]())
			Expect(err).Should(MatchError(activator.ErrNotOpenGeneric))
		})

		It("should reject implementations not assignable to the service", func() {
			err := activator.Closing[Store[User]](table, func(godi.Resolver) (*Cached[User], error) {
				return nil, nil
			})

			Expect(err).Should(HaveOccurred())
		})
	})

	Describe("with a registry", func() {
		build := func(configure func(c godi.Collection)) *godi.Scope {
			c := godi.NewCollection(activator.NewReflect())
			configure(c)

			reg, err := c.Build(godi.WithActivator(table))
			Expect(err).ShouldNot(HaveOccurred())
			DeferCleanup(reg.Close)

			scope, err := reg.CreateScope()
			Expect(err).ShouldNot(HaveOccurred())
			DeferCleanup(scope.Close)

			return scope
		}

		It("should close open generics once per closed type", func() {
			calls := 0
			Expect(activator.Closing[Store[User]](table, func(godi.Resolver) (*memoryStore[User], error) {
				calls++
				return &memoryStore[User]{items: map[int]User{1: {ID: 1, Name: "ada"}}}, nil
			})).To(Succeed())
			Expect(activator.Closing[Store[string]](table, func(godi.Resolver) (*memoryStore[string], error) {
				return &memoryStore[string]{items: map[int]string{1: "one"}}, nil
			})).To(Succeed())

			scope := build(func(c godi.Collection) {
				Expect(c.AddOpenGeneric(godi.DefinitionFor[Store[any]](), godi.DefinitionFor[*memoryStore[any]](), godi.Singleton)).To(Succeed())
			})

			users1, err := godi.Resolve[Store[User]](scope)
			Expect(err).ShouldNot(HaveOccurred())
			users2, err := godi.Resolve[Store[User]](scope)
			Expect(err).ShouldNot(HaveOccurred())
			names, err := godi.Resolve[Store[string]](scope)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(users1).To(BeIdenticalTo(users2))
			Expect(calls).To(Equal(1))

			u, err := users1.Get(1)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(u.Name).To(Equal("ada"))

			n, err := names.Get(1)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(n).To(Equal("one"))
		})

		It("should build decorators around the resolved inner service", func() {
			inner := &memoryStore[User]{items: map[int]User{}}
			activator.Decorator(table, func(r godi.Resolver, s Store[User]) (*Cached[Store[User]], error) {
				return &Cached[Store[User]]{Inner: s}, nil
			})

			scope := build(func(c godi.Collection) {
				Expect(c.AddInstance(inner, godi.As(new(Store[User])))).To(Succeed())
				Expect(c.Decorate(godi.DefinitionFor[*Cached[any]](), godi.Scoped, 0)).To(Succeed())
			})

			cached, err := godi.Resolve[*Cached[Store[User]]](scope)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(cached.Inner).To(BeIdenticalTo(inner))

			again, err := godi.Resolve[*Cached[Store[User]]](scope)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(again).To(BeIdenticalTo(cached))
		})

		It("should fail when the wrapped service is not registered", func() {
			activator.Decorator(table, func(r godi.Resolver, s Store[User]) (*Cached[Store[User]], error) {
				return &Cached[Store[User]]{Inner: s}, nil
			})

			scope := build(func(c godi.Collection) {
				Expect(c.Decorate(godi.DefinitionFor[*Cached[any]](), godi.Transient, 0)).To(Succeed())
			})

			_, err := godi.Resolve[*Cached[Store[User]]](scope)

			Expect(godi.IsNotFound(err)).To(BeTrue())
			var re godi.ResolutionError
			Expect(errors.As(err, &re)).To(BeTrue())
			Expect(re.ServiceType).To(Equal(reflect.TypeFor[Store[User]]()))
		})
	})
})
