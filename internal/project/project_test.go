package project_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/mdsuite/internal/database"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/testutil"
	"github.com/san-kum/mdsuite/internal/traj"
)

func naclDump(configs int) testutil.Dump {
	elements := []string{"Na", "Cl", "Na", "Cl"}
	start := [][3]float64{{1, 1, 1}, {3, 3, 3}, {5, 5, 5}, {7, 7, 7}}
	vel := [][3]float64{{0.1, 0, 0}, {0, 0.1, 0}, {0, 0, 0.1}, {0.1, 0.1, 0}}
	return testutil.Linear(elements, [3]float64{10, 10, 10}, start, vel, configs, 10)
}

var _ = Describe("Project", func() {
	var (
		ctx     context.Context
		storage string
		p       *project.Project
	)

	BeforeEach(func() {
		ctx = context.Background()
		storage = GinkgoT().TempDir()
		var err error
		p, err = project.Open(ctx, storage, "test_project", project.Options{})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(p.Close()).To(Succeed())
	})

	Describe("experiments", func() {
		It("creates the experiment directory layout", func() {
			e, err := p.AddExperiment(ctx, project.ExperimentOptions{Name: "NaCl", TimeStep: 0.002, Temperature: 1400, Units: "metal"})
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Units.Name).To(Equal("metal"))
			Expect(e.Active).To(BeTrue())

			for _, dir := range []string{e.DatabaseDir(), e.FiguresDir(), e.LogDir()} {
				info, err := os.Stat(dir)
				Expect(err).NotTo(HaveOccurred())
				Expect(info.IsDir()).To(BeTrue())
			}
		})

		It("returns the existing experiment when added twice", func() {
			first, err := p.AddExperiment(ctx, project.ExperimentOptions{Name: "NaCl", Temperature: 1400})
			Expect(err).NotTo(HaveOccurred())
			second, err := p.AddExperiment(ctx, project.ExperimentOptions{Name: "NaCl", Temperature: 300})
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeIdenticalTo(first))
			Expect(second.Temperature).To(Equal(1400.0))
		})

		It("rejects invalid names and unknown units", func() {
			_, err := p.AddExperiment(ctx, project.ExperimentOptions{Name: "a/b"})
			Expect(err).To(MatchError(project.ErrInvalidName))
			_, err = p.AddExperiment(ctx, project.ExperimentOptions{Name: "x", Units: "cgs"})
			Expect(err).To(HaveOccurred())
		})

		It("activates and disables experiments", func() {
			for _, name := range []string{"a", "b", "c"} {
				_, err := p.AddExperiment(ctx, project.ExperimentOptions{Name: name})
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(p.Disable(ctx, "b")).To(Succeed())

			active, err := p.ActiveExperiments(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(project.Names(active)).To(Equal([]string{"a", "c"}))

			Expect(p.Activate(ctx, "b")).To(Succeed())
			active, err = p.ActiveExperiments(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(HaveLen(3))
		})

		It("removes an experiment and its directory", func() {
			e, err := p.AddExperiment(ctx, project.ExperimentOptions{Name: "gone"})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.RemoveExperiment(ctx, "gone")).To(Succeed())

			_, err = os.Stat(e.Dir())
			Expect(os.IsNotExist(err)).To(BeTrue())
			_, err = p.Experiment(ctx, "gone")
			Expect(err).To(MatchError(project.ErrNotFound))
		})
	})

	Describe("adding data", func() {
		var e *project.Experiment

		BeforeEach(func() {
			var err error
			e, err = p.AddExperiment(ctx, project.ExperimentOptions{Name: "NaCl", TimeStep: 0.002, Temperature: 1400, Units: "metal"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("records species, properties and configurations", func() {
			path := testutil.WriteLAMMPS(GinkgoT(), "nacl.lammpstraj", naclDump(5))
			var calls []int
			Expect(e.AddData(ctx, project.DataSource{Path: path, Format: "lammps_traj"}, func(done, total int) {
				calls = append(calls, done)
				Expect(total).To(Equal(5))
			})).To(Succeed())

			Expect(calls).NotTo(BeEmpty())
			Expect(calls[len(calls)-1]).To(Equal(5))
			Expect(e.NumberOfAtoms).To(Equal(4))
			Expect(e.NumberOfConfigurations).To(Equal(5))
			Expect(e.SampleRate).To(Equal(10))
			Expect(e.Box).To(Equal([3]float64{10, 10, 10}))
			Expect(e.SpeciesNames()).To(Equal([]string{"Cl", "Na"}))
			Expect(e.Species["Na"].Indices).To(Equal([]int{0, 2}))
			Expect(e.Species["Na"].Mass).To(BeNumerically("~", 22.99, 1e-6))
			Expect(e.Properties).To(Equal([]string{"Positions", "Velocities"}))

			tensor, err := e.Load("Positions", "Cl", 0, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(tensor.At(0, 4, 1)).To(BeNumerically("~", 3.4, 1e-9))
		})

		It("appends a second file and refuses a file read twice", func() {
			first := testutil.WriteLAMMPS(GinkgoT(), "a.lammpstraj", naclDump(3))
			second := testutil.WriteLAMMPS(GinkgoT(), "b.lammpstraj", naclDump(4))

			Expect(e.AddData(ctx, project.DataSource{Path: first}, nil)).To(Succeed())
			version := e.Version
			Expect(e.AddData(ctx, project.DataSource{Path: second}, nil)).To(Succeed())
			Expect(e.NumberOfConfigurations).To(Equal(7))
			Expect(e.Version).To(BeNumerically(">", version))

			Expect(e.AddData(ctx, project.DataSource{Path: first}, nil)).To(MatchError(project.ErrAlreadyRead))

			files, err := e.ReadFiles(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(files).To(HaveLen(2))
		})

		It("rejects a file with a different atom count", func() {
			Expect(e.AddData(ctx, project.DataSource{Path: testutil.WriteLAMMPS(GinkgoT(), "a.lammpstraj", naclDump(3))}, nil)).To(Succeed())

			small := testutil.Linear([]string{"Na"}, [3]float64{10, 10, 10}, [][3]float64{{0, 0, 0}}, [][3]float64{{0, 0, 0}}, 2, 1)
			err := e.AddData(ctx, project.DataSource{Path: testutil.WriteLAMMPS(GinkgoT(), "small.lammpstraj", small)}, nil)
			Expect(err).To(MatchError(project.ErrAtomCountMismatch))
		})

		It("maps element names and sets charges", func() {
			d := naclDump(2)
			d.Elements = []string{"1", "2", "1", "2"}
			Expect(e.AddData(ctx, project.DataSource{Path: testutil.WriteLAMMPS(GinkgoT(), "typed.lammpstraj", d)}, nil)).To(Succeed())

			Expect(e.MapElements(ctx, map[string]string{"1": "Na", "2": "Cl"})).To(Succeed())
			Expect(e.SpeciesNames()).To(Equal([]string{"Cl", "Na"}))
			Expect(e.SetCharge(ctx, "Na", 1)).To(Succeed())
			Expect(e.SetCharge(ctx, "Cl", -1)).To(Succeed())
			Expect(e.SetCharge(ctx, "K", 1)).To(MatchError(project.ErrUnknownSpecies))

			tensor, err := e.Load("Positions", "Na", 0, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(tensor.Atoms).To(Equal(2))

			Expect(e.AddData(ctx, project.DataSource{Path: testutil.WriteLAMMPS(GinkgoT(), "typed2.lammpstraj", d)}, nil)).To(Succeed())
			Expect(e.NumberOfConfigurations).To(Equal(4))
		})

		It("survives reopening the project", func() {
			Expect(e.AddData(ctx, project.DataSource{Path: testutil.WriteLAMMPS(GinkgoT(), "a.lammpstraj", naclDump(3))}, nil)).To(Succeed())
			Expect(e.SetCharge(ctx, "Na", 1)).To(Succeed())
			Expect(p.Close()).To(Succeed())

			var err error
			p, err = project.Open(ctx, storage, "test_project", project.Options{})
			Expect(err).NotTo(HaveOccurred())

			reopened, err := p.Experiment(ctx, "NaCl")
			Expect(err).NotTo(HaveOccurred())
			Expect(reopened.NumberOfConfigurations).To(Equal(3))
			Expect(reopened.Species["Na"].Charge).To(Equal(1.0))
			Expect(reopened.Units.Name).To(Equal("metal"))
			Expect(reopened.Version).To(Equal(e.Version))

			summary, err := reopened.Summary(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Species).To(Equal(map[string]int{"Na": 2, "Cl": 2}))
			Expect(summary.Groups).To(ContainElement("Na/Positions"))
			Expect(summary.DatabaseSize).To(BeNumerically(">", 0))
			Expect(summary.HumanSize).NotTo(BeEmpty())
		})
	})

	Describe("a file that fails halfway", func() {
		var e *project.Experiment

		BeforeEach(func() {
			Expect(p.Close()).To(Succeed())
			var err error
			p, err = project.Open(ctx, storage, "batched", project.Options{MaxBatch: 2})
			Expect(err).NotTo(HaveOccurred())
			e, err = p.AddExperiment(ctx, project.ExperimentOptions{Name: "NaCl"})
			Expect(err).NotTo(HaveOccurred())
		})

		// broken has five configurations shifted by 50 in x; the last
		// timestep is unreadable, so two batches are written before it fails
		broken := func() string {
			d := naclDump(5)
			for _, frame := range d.Values {
				for _, row := range frame {
					row[0] += 50
				}
			}
			content := strings.Replace(d.String(), "ITEM: TIMESTEP\n40\n", "ITEM: TIMESTEP\nabc\n", 1)
			path := filepath.Join(GinkgoT().TempDir(), "broken.lammpstraj")
			Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
			return path
		}

		positions := func(species string) database.DatasetInfo {
			db, err := e.Database()
			Expect(err).NotTo(HaveOccurred())
			info, err := db.Info(database.Join(species, traj.Positions))
			Expect(err).NotTo(HaveOccurred())
			return info
		}

		It("leaves no frames behind when it is the first file", func() {
			Expect(e.AddData(ctx, project.DataSource{Path: broken()}, nil)).To(MatchError(traj.ErrMalformed))
			Expect(e.NumberOfAtoms).To(Equal(0))
			Expect(e.NumberOfConfigurations).To(Equal(0))

			db, err := e.Database()
			Expect(err).NotTo(HaveOccurred())
			Expect(db.Datasets()).To(BeEmpty())

			Expect(e.AddData(ctx, project.DataSource{Path: testutil.WriteLAMMPS(GinkgoT(), "a.lammpstraj", naclDump(3))}, nil)).To(Succeed())
			Expect(positions("Cl").Configurations).To(Equal(3))
			tensor, err := e.Load(traj.Positions, "Cl", 0, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(tensor.At(0, 0, 0)).To(BeNumerically("~", 3, 1e-9))
		})

		It("truncates back to the previous files", func() {
			Expect(e.AddData(ctx, project.DataSource{Path: testutil.WriteLAMMPS(GinkgoT(), "a.lammpstraj", naclDump(3))}, nil)).To(Succeed())
			Expect(e.AddData(ctx, project.DataSource{Path: broken()}, nil)).To(MatchError(traj.ErrMalformed))
			Expect(e.NumberOfConfigurations).To(Equal(3))
			Expect(positions("Na").Configurations).To(Equal(3))
			Expect(positions("Cl").Configurations).To(Equal(3))

			files, err := e.ReadFiles(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(files).To(HaveLen(1))

			Expect(e.AddData(ctx, project.DataSource{Path: testutil.WriteLAMMPS(GinkgoT(), "b.lammpstraj", naclDump(4))}, nil)).To(Succeed())
			Expect(e.NumberOfConfigurations).To(Equal(7))
			Expect(positions("Cl").Configurations).To(Equal(7))
			tensor, err := e.Load(traj.Positions, "Cl", 0, 7)
			Expect(err).NotTo(HaveOccurred())
			// configuration 3 is the first of b, not a frame of the broken file
			Expect(tensor.At(0, 3, 0)).To(BeNumerically("~", 3, 1e-9))
			Expect(tensor.At(0, 3, 1)).To(BeNumerically("~", 3, 1e-9))
		})
	})
})
