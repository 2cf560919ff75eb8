package conversion_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/scanconvert/internal/conversion"
	"github.com/zombor/scanconvert/internal/scanconv"
)

var _ = Describe("Integration", func() {
	var (
		tempDir     string
		storagePath string
		db          conversion.DB
		store       conversion.Storage
		service     *conversion.Service
		server      *conversion.Server
		ghServer    *ghttp.Server
		defaults    scanconv.ProbeConfig
		err         error
	)

	// sweep draws a raw scan whose columns are scan lines and rows are samples
	sweep := func(lines, samples int) []byte {
		img := image.NewRGBA(image.Rect(0, 0, lines, samples))
		for y := 0; y < samples; y++ {
			for x := 0; x < lines; x++ {
				img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 0xff})
			}
		}
		var buf bytes.Buffer
		Expect(png.Encode(&buf, img)).To(Succeed())
		return buf.Bytes()
	}

	BeforeEach(func() {
		tempDir, err = os.MkdirTemp("", "scanconvert-test-*")
		Expect(err).NotTo(HaveOccurred())

		storagePath = filepath.Join(tempDir, "scans")

		db, err = conversion.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = conversion.NewLocalStorage(storagePath)
		Expect(err).NotTo(HaveOccurred())

		defaults = scanconv.ProbeConfig{Depth: 80, HalfAngle: 25.93, InnerRadius: 61.12}
		service = conversion.NewService(db, scanconv.NewConverter(scanconv.WithWorkers(2)), store)
		server = conversion.NewServer(service, conversion.BasicAuth{}, defaults)

		ghServer = ghttp.NewServer()
	})

	AfterEach(func() {
		if ghServer != nil {
			ghServer.Close()
		}
		if db != nil {
			db.Close()
		}
		if tempDir != "" {
			os.RemoveAll(tempDir)
		}
	})

	It("should upload a scan, convert it, and serve the result", func() {
		ghServer.AppendHandlers(
			server.ServeHTTP, // upload
			server.ServeHTTP, // fetch image
			server.ServeHTTP, // list
			server.ServeHTTP, // delete
		)

		// --- Step 1: Upload ---
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "sweep.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(sweep(30, 40))
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghServer.URL()+"/api/scans", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var created conversion.Conversion
		Expect(json.NewDecoder(resp.Body).Decode(&created)).To(Succeed())
		Expect(created.ID).NotTo(BeEmpty())
		Expect(created.Probe.LineCount).To(Equal(30))
		Expect(created.Probe.SamplesPerLine).To(Equal(40))

		geom, err := scanconv.NewGeometry(created.Probe)
		Expect(err).NotTo(HaveOccurred())
		width, height, err := scanconv.OutputSize(created.Probe, geom)
		Expect(err).NotTo(HaveOccurred())
		Expect(created.Width).To(Equal(width))
		Expect(created.Height).To(Equal(height))
		Expect(created.InsidePixels).To(BeNumerically(">", 0))
		Expect(created.InsidePixels).To(BeNumerically("<", width*height))

		Expect(filepath.Join(storagePath, created.Filename)).To(BeAnExistingFile())
		Expect(filepath.Join(storagePath, created.OutputFilename)).To(BeAnExistingFile())

		// --- Step 2: Fetch the converted image ---
		imgResp, err := http.Get(ghServer.URL() + "/api/scans/" + created.ID + "/image")
		Expect(err).NotTo(HaveOccurred())
		defer imgResp.Body.Close()
		Expect(imgResp.StatusCode).To(Equal(http.StatusOK))
		Expect(imgResp.Header.Get("Content-Type")).To(Equal("image/png"))

		data, err := io.ReadAll(imgResp.Body)
		Expect(err).NotTo(HaveOccurred())
		img, err := png.Decode(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(Equal(width))
		Expect(img.Bounds().Dy()).To(Equal(height))

		r, g, b, _ := img.At(0, 0).RGBA()
		Expect([]uint32{r >> 8, g >> 8, b >> 8}).To(Equal([]uint32{0, 0, 255}))

		// --- Step 3: List ---
		listResp, err := http.Get(ghServer.URL() + "/api/scans")
		Expect(err).NotTo(HaveOccurred())
		defer listResp.Body.Close()
		var conversions []conversion.Conversion
		Expect(json.NewDecoder(listResp.Body).Decode(&conversions)).To(Succeed())
		Expect(conversions).To(HaveLen(1))
		Expect(conversions[0].ID).To(Equal(created.ID))

		// --- Step 4: Delete ---
		req, err := http.NewRequest(http.MethodDelete, ghServer.URL()+"/api/scans/"+created.ID, nil)
		Expect(err).NotTo(HaveOccurred())
		delResp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer delResp.Body.Close()
		Expect(delResp.StatusCode).To(Equal(http.StatusNoContent))

		Expect(filepath.Join(storagePath, created.OutputFilename)).NotTo(BeAnExistingFile())
		_, err = db.GetConversion(created.ID)
		Expect(err).To(MatchError(conversion.ErrNotFound))
	})
})
