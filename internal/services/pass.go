package services

import (
  "bytes"
  "context"
  "fmt"
  "hash/fnv"
  "image"
  "image/color"
  "os"
  "strings"

  "github.com/disintegration/imaging"
  "github.com/fogleman/gg"
  "github.com/golang/freetype/truetype"
  "golang.org/x/image/font"

  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/repos"
  "github.com/trackside-org/trackside-backend/internal/types"
)

// PassService draws the boarding pass image for a ticket and keeps the stored
// copy in step with the current passenger.
type PassService interface {
  RenderPass(ticket *types.Ticket) (bytes.Buffer, error)
  CreateAndUploadPass(ctx context.Context, ticket *types.Ticket) error
}

type passService struct {
  log           *logger.Logger
  ticketRepo    repos.TicketRepo
  bucketService BucketService
  titleFace     font.Face
  bodyFace      font.Face
  logo          image.Image
}

var passBandColors = []color.NRGBA{
  {R: 29, G: 53, B: 87, A: 255},
  {R: 69, G: 123, B: 157, A: 255},
  {R: 42, G: 157, B: 143, A: 255},
  {R: 231, G: 111, B: 81, A: 255},
  {R: 106, G: 76, B: 147, A: 255},
}

const (
  passWidth   = 900
  passHeight  = 360
)

// NewPassService loads optional assets. With no font the gg default face is
// used; with no logo the header is text only.
func NewPassService(log *logger.Logger, ticketRepo repos.TicketRepo, bucketService BucketService, fontPath, logoPath string) (PassService, error) {
  serviceLog := log.With("service", "PassService")
  ps := &passService{
    log:           serviceLog,
    ticketRepo:    ticketRepo,
    bucketService: bucketService,
  }

  if fontPath != "" {
    title, err := loadFontFace(fontPath, 30)
    if err != nil {
      return nil, err
    }
    body, err := loadFontFace(fontPath, 18)
    if err != nil {
      return nil, err
    }
    ps.titleFace, ps.bodyFace = title, body
  }
  if logoPath != "" {
    img, err := imaging.Open(logoPath)
    if err != nil {
      return nil, fmt.Errorf("failed to open pass logo: %w", err)
    }
    ps.logo = imaging.Fit(colorizeImageWhite(img), 64, 64, imaging.Lanczos)
  }
  return ps, nil
}

func (ps *passService) RenderPass(ticket *types.Ticket) (bytes.Buffer, error) {
  const bandHeight = 90.0
  dc := gg.NewContext(passWidth, passHeight)

  //1) Card background and header band
  dc.SetColor(color.White)
  dc.DrawRectangle(0, 0, passWidth, passHeight)
  dc.Fill()
  band := bandColorFor(ticket.TicketNumber)
  dc.SetColor(band)
  dc.DrawRectangle(0, 0, passWidth, bandHeight)
  dc.Fill()

  //2) Logo and route
  textLeft := 30.0
  if ps.logo != nil {
    dc.DrawImageAnchored(ps.logo, 30+32, int(bandHeight/2), 0.5, 0.5)
    textLeft = 110
  }
  if ps.titleFace != nil {
    dc.SetFontFace(ps.titleFace)
  }
  dc.SetColor(color.White)
  dc.DrawStringAnchored(fmt.Sprintf("%s  ->  %s", ticket.From, ticket.To), textLeft, bandHeight/2, 0, 0.35)

  //3) Passenger badge
  dc.SetColor(lightenOrDarken(band, 0.25))
  dc.DrawCircle(passWidth-90, bandHeight+90, 50)
  dc.Fill()
  dc.SetColor(color.White)
  dc.DrawStringAnchored(passengerInitials(ticket.PassengerName), passWidth-90, bandHeight+90, 0.5, 0.35)

  //4) Detail rows
  if ps.bodyFace != nil {
    dc.SetFontFace(ps.bodyFace)
  }
  dc.SetColor(color.NRGBA{R: 40, G: 40, B: 40, A: 255})
  rows := []string{
    "Passenger: " + ticket.PassengerName,
    "Train: " + ticket.TrainName,
    fmt.Sprintf("Coach %s  Seat %s", ticket.Coach, ticket.Seat),
    "Departs: " + ticket.DepartureTime.Format("Mon 02 Jan 2006 15:04"),
    "Ticket: " + ticket.TicketNumber,
  }
  y := bandHeight + 45
  for _, row := range rows {
    dc.DrawString(row, 30, y)
    y += 40
  }

  //5) Perforation
  dc.SetColor(lightenOrDarken(band, 0.5))
  dc.SetDash(6, 6)
  dc.SetLineWidth(2)
  dc.DrawLine(passWidth-200, bandHeight+10, passWidth-200, passHeight-10)
  dc.Stroke()

  var buf bytes.Buffer
  if err := dc.EncodePNG(&buf); err != nil {
    return buf, fmt.Errorf("failed to encode PNG: %w", err)
  }
  return buf, nil
}

func (ps *passService) CreateAndUploadPass(ctx context.Context, ticket *types.Ticket) error {
  ps.log.Info("Creating ticket pass now...", "ticketID", ticket.ID)
  buf, err := ps.RenderPass(ticket)
  if err != nil {
    return err
  }
  bucketKey := fmt.Sprintf("passes/%s/%d.png", ticket.ID, len(ticket.Transfers))
  if err := ps.bucketService.UploadFile(ctx, bucketKey, bytes.NewReader(buf.Bytes()), "image/png"); err != nil {
    return fmt.Errorf("failed to upload pass: %w", err)
  }
  passURL := ps.bucketService.GetPublicURL(bucketKey)
  if err := ps.ticketRepo.UpdatePass(ctx, nil, ticket.ID, bucketKey, passURL); err != nil {
    return fmt.Errorf("failed to record pass url: %w", err)
  }
  ticket.PassBucketKey = bucketKey
  ticket.PassURL = passURL
  ps.log.Info("Successfully created ticket pass", "ticketID", ticket.ID, "passURL", passURL)
  return nil
}

//----------------------------------------------------------------------------------------
// Helpers
//----------------------------------------------------------------------------------------
func bandColorFor(ticketNumber string) color.NRGBA {
  h := fnv.New32a()
  _, _ = h.Write([]byte(ticketNumber))
  return passBandColors[int(h.Sum32())%len(passBandColors)]
}

func colorizeImageWhite(img image.Image) image.Image {
  bounds := img.Bounds()
  out := image.NewNRGBA(bounds)
  for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
    for x := bounds.Min.X; x < bounds.Max.X; x++ {
      _, _, _, a := img.At(x, y).RGBA()
      out.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: uint8(a >> 8)})
    }
  }
  return out
}

func passengerInitials(name string) string {
  parts := strings.Fields(name)
  switch len(parts) {
  case 0:
    return "??"
  case 1:
    return computeInitials(parts[0], "")
  default:
    return computeInitials(parts[0], parts[len(parts)-1])
  }
}

func computeInitials(first, last string) string {
  fInit := "?"
  if r := []rune(first); len(r) > 0 {
    fInit = strings.ToUpper(string(r[0]))
  }
  if last == "" {
    return fInit
  }
  lInit := strings.ToUpper(string([]rune(last)[0]))
  return fInit + lInit
}

func lightenOrDarken(c color.NRGBA, fraction float64) color.NRGBA {
  clamp := func(v float64) uint8 {
    if v < 0 {
      return 0
    }
    if v > 255 {
      return 255
    }
    return uint8(v)
  }
  delta := 255.0 * fraction
  return color.NRGBA{
    R: clamp(float64(c.R) + delta),
    G: clamp(float64(c.G) + delta),
    B: clamp(float64(c.B) + delta),
    A: c.A,
  }
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
  fontBytes, err := os.ReadFile(fontPath)
  if err != nil {
    return nil, fmt.Errorf("failed to read font file: %w", err)
  }
  parsedFont, err := truetype.Parse(fontBytes)
  if err != nil {
    return nil, fmt.Errorf("failed to parse TTF: %w", err)
  }
  face := truetype.NewFace(parsedFont, &truetype.Options{
    Size:     size,
    DPI:      72,
    Hinting:  font.HintingNone,
  })
  return face, nil
}
