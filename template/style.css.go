package template

// StyleCSS is embedded as Styles/stylesheet.css unless the book supplies its own.
const StyleCSS = `
body > div {
  margin: 0 auto;
  padding: 0 1em;
  box-sizing: border-box;
  line-height: 1.6;
  text-align: justify;
}

h1 {
  text-align: center;
  font-size: 1.5em;
  margin: 1.5em auto;
  font-weight: bold;
}

h2, h3 {
  font-size: 1.2em;
  margin: 1.2em 0 0.6em;
}

p {
  text-indent: 1.5em;
  margin: 0.6em 0;
}

hr {
  border: none;
  border-bottom: 1px solid #e0e0e0;
  margin: 1.5em 20%;
}

img {
  max-width: 100%;
  height: auto;
  display: block;
  margin: 1em auto;
}

div.cover {
  text-align: center;
  height: 100%;
}

div.cover img {
  max-height: 100%;
}

nav ol {
  list-style-type: none;
}
`
