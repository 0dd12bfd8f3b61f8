package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const catalogFixture = `<!DOCTYPE html>
<html><body>
<article class="formation">
  <h2>Initiation ski de randonnée</h2>
  <ul class="infos">
    <li>Référence : 24-SKI-0042</li>
    <li>Dates : Du 01/01/2024 au 02/01/2024, rattrapage le 03/01/2024</li>
    <li>Lieu : Chamonix</li>
    <li>Discipline : Ski de randonnée</li>
    <li>Hébergement : Refuge</li>
    <li>Capacité : 12</li>
    <li>Places restantes : 4</li>
    <li>Tarif : 250 €</li>
    <li>Organisateur : FFCAM FFCAM</li>
    <li>Responsable : Jean Dupont</li>
  </ul>
  <script>var adr=[109,97,105,108,116,111,58,115,116,97,103,101,64,102,102,99,97,109,46,102,114];</script>
  <div class="documents">
    <a href="/docs/fiche-inscription.pdf">Fiche d'inscription</a>
    <a href="/docs/cursus-ski.pdf">Cursus ski</a>
  </div>
</article>
<article class="formation">
  <h2>Sans référence, à ignorer</h2>
  <ul class="infos">
    <li>Lieu : Grenoble</li>
  </ul>
</article>
<article class="formation">
  <h2>Alpinisme estival</h2>
  <ul class="infos">
    <li>Référence : 2024ALPI0123</li>
    <li>Dates : à confirmer</li>
    <li>Lieu : Ailefroide</li>
    <li>Discipline : Alpinisme</li>
    <li>Tarif : Gratuit</li>
    <li>Places restantes : aucune info</li>
    <li>Organisateur : CLUB ALPIN PARIS CLUB ALPIN MARSEILLE</li>
  </ul>
</article>
</body></html>`

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser("https://www.ffcam.example/formations", zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestParseExtractsFullListing(t *testing.T) {
	t.Parallel()

	records, err := newTestParser(t).Parse([]byte(catalogFixture))
	require.NoError(t, err)
	require.Len(t, records, 2, "the listing without a reference must be skipped")

	rec := records[0]
	require.Equal(t, "24-SKI-0042", rec.Reference)
	require.Equal(t, "Initiation ski de randonnée", rec.Title)
	require.Equal(t, "Chamonix", rec.Location)
	require.Equal(t, "Ski de randonnée", rec.Discipline)
	require.Equal(t, "Refuge", rec.Lodging)
	require.Equal(t, 12, rec.Capacity)
	require.NotNil(t, rec.SeatsRemaining)
	require.Equal(t, 4, *rec.SeatsRemaining)
	require.Equal(t, 250, rec.Price)
	require.Equal(t, "FFCAM", rec.Organizer, "doubled organizer must collapse")
	require.Equal(t, "Jean Dupont", rec.Responsible)
	require.Equal(t, "stage@ffcam.fr", rec.ContactEmail)

	require.Equal(t, []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	}, rec.Dates)

	require.Len(t, rec.Documents, 2)
	require.Equal(t, "inscription", rec.Documents[0].Type)
	require.Equal(t, "https://www.ffcam.example/docs/fiche-inscription.pdf", rec.Documents[0].URL)
	require.Equal(t, "cursus", rec.Documents[1].Type)
	require.Equal(t, "Cursus ski", rec.Documents[1].Label)
}

func TestParseNullSemantics(t *testing.T) {
	t.Parallel()

	records, err := newTestParser(t).Parse([]byte(catalogFixture))
	require.NoError(t, err)

	rec := records[1]
	require.Equal(t, "2024ALPI0123", rec.Reference)
	require.Equal(t, 0, rec.Price, "Gratuit means price 0")
	require.Nil(t, rec.SeatsRemaining, "no digits means unknown, not zero")
	require.Empty(t, rec.ContactEmail, "no script means no contact email")
	require.Empty(t, rec.Dates)
	require.Equal(t, "CLUB ALPIN PARIS CLUB ALPIN MARSEILLE", rec.Organizer,
		"different halves must not collapse")
}

func TestParseSkipsUnrecognizedReference(t *testing.T) {
	t.Parallel()

	const fixture = `<html><body><article class="formation">
	  <h2>Référence exotique</h2>
	  <ul class="infos"><li>Référence : stage-printemps</li></ul>
	</article></body></html>`

	records, err := newTestParser(t).Parse([]byte(fixture))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestParseEmptyDocument(t *testing.T) {
	t.Parallel()

	records, err := newTestParser(t).Parse([]byte("<html><body></body></html>"))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestNewParserRejectsRelativeURL(t *testing.T) {
	t.Parallel()

	_, err := NewParser("/formations", zap.NewNop())
	require.Error(t, err)
}
